package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	"relaymail/internal/admin"
	"relaymail/internal/api"
	"relaymail/internal/app"
	"relaymail/internal/auth"
	"relaymail/internal/config"
	"relaymail/internal/log"
	"relaymail/internal/sqlstore"
	"relaymail/internal/webhook"
)

//Version holds the CLI application version
const Version = "0.3.0"

func main() {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cliApp := cli.NewApp()
	cliApp.Name = "relaymail-api"
	cliApp.Usage = "HTTP API and provider webhooks for the email relay"
	cliApp.Version = Version
	cliApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "YAML config `FILE` (environment variables still override it)",
		},
	}
	cliApp.Action = runServe
	cliApp.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the HTTP server (default)",
			Action: runServe,
		},
		{
			Name:      "seed",
			Usage:     "load users, contacts, jobs and unlocks from a JSON file",
			ArgsUsage: "FILE",
			Action:    runSeed,
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.GlobalString("config")
	if path == "" {
		path = ctx.String("config")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := log.Initialize(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	a, err := app.Open(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.WebhookSigningKey == "" {
		log.Warnf("webhook_signing_key is empty; all provider webhooks will be rejected")
	}
	verifier := webhook.NewVerifier(cfg.WebhookSigningKey, cfg.WebhookMaxAge(), a.Redis)

	authSvc, err := auth.NewService(cfg.AdminPassword, cfg.JWTSecret)
	if err != nil {
		return err
	}
	if cfg.AdminPassword == "" {
		log.Warnf("admin_password is empty; admin login is disabled")
	}

	handler := api.New(cfg, a.Relay, verifier, authSvc, a.Redis, map[string]api.Pinger{
		"db":    a.SQL,
		"redis": a.Redis,
	})
	adminHandler := admin.NewAdminHandler(cfg, a.Relay, a.Redis, authSvc)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(adminHandler.Routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Infof("API server starting on %s (relay domain %s)", cfg.HTTPAddr, cfg.RelayDomain)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}
	log.Info("shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exiting")
	return nil
}

func runSeed(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("seed requires exactly one FILE argument", 2)
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(ctx.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	var seed sqlstore.Seed
	if err := json.NewDecoder(f).Decode(&seed); err != nil {
		return fmt.Errorf("decoding seed file: %w", err)
	}

	db, err := sqlstore.Open(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DBTimeout())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ApplySeed(context.Background(), seed); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"users":    len(seed.Users),
		"contacts": len(seed.Contacts),
		"jobs":     len(seed.Jobs),
	}).Info("seed applied")
	return nil
}
