// Package app opens the backing stores and assembles the relay service
// shared by the api and ingestor binaries.
package app

import (
	"fmt"

	"relaymail/internal/config"
	"relaymail/internal/log"
	"relaymail/internal/mailer"
	"relaymail/internal/redisstore"
	"relaymail/internal/relay"
	"relaymail/internal/sqlstore"
)

type App struct {
	Config *config.Config
	SQL    *sqlstore.Store
	Redis  *redisstore.Store
	Relay  *relay.Service
}

// Open connects to the database and Redis and builds the relay service.
func Open(cfg *config.Config) (*App, error) {
	db, err := sqlstore.Open(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DBTimeout())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rs, err := redisstore.New(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	svc := relay.New(RelayConfig(cfg), db, Dispatcher(cfg), relay.WithCounter(rs))
	return &App{Config: cfg, SQL: db, Redis: rs, Relay: svc}, nil
}

func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		log.Errorf("closing redis: %v", err)
	}
	if err := a.SQL.Close(); err != nil {
		log.Errorf("closing database: %v", err)
	}
}

func RelayConfig(cfg *config.Config) relay.Config {
	return relay.Config{
		Domain:        cfg.RelayDomain,
		UserPrefix:    cfg.UserPrefix,
		ContactPrefix: cfg.ContactPrefix,
		SendTimeout:   cfg.SendTimeout(),
	}
}

// Dispatcher picks the outbound transport named by mailer_driver.
func Dispatcher(cfg *config.Config) mailer.Dispatcher {
	if cfg.MailerDriver == config.MailerSMTP {
		log.Infof("outbound mail via smtp %s:%d", cfg.SMTPHost, cfg.SMTPPort)
		return mailer.NewSMTPDispatcher(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPStartTLS)
	}
	log.Info("outbound mail is logged only (mailer_driver=log)")
	return mailer.LogDispatcher{}
}
