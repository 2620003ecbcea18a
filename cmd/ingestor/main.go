package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	"relaymail/internal/app"
	"relaymail/internal/config"
	"relaymail/internal/imapworker"
	"relaymail/internal/log"
)

func main() {
	_ = godotenv.Load()

	cliApp := cli.NewApp()
	cliApp.Name = "relaymail-ingestor"
	cliApp.Usage = "poll the relay mailbox over IMAP and process replies"
	cliApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "YAML config `FILE` (environment variables still override it)",
		},
	}
	cliApp.Action = run

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	if err := log.Initialize(cfg.Log); err != nil {
		return err
	}

	a, err := app.Open(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	worker := imapworker.New(cfg, a.Redis, a.Relay.Processor)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(runCtx)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down ingestor")

	cancel()
	<-done
	return nil
}
