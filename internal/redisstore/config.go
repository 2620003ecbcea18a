package redisstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Runtime IMAP override keys, set from the admin API.
const (
	KeyConfigIMAPHost = "config:imap:host"
	KeyConfigIMAPPort = "config:imap:port"
	KeyConfigIMAPUser = "config:imap:user"
	KeyConfigIMAPPass = "config:imap:pass"
)

// IMAPSettings is the mailbox the ingestor polls.
type IMAPSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	Pass string `json:"-"`
}

// UpdateIMAPConfig stores IMAP settings that take precedence over the
// static config on the ingestor's next poll.
func (s *Store) UpdateIMAPConfig(ctx context.Context, cfg IMAPSettings) error {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, KeyConfigIMAPHost, cfg.Host, 0)
	pipe.Set(ctx, KeyConfigIMAPPort, cfg.Port, 0)
	pipe.Set(ctx, KeyConfigIMAPUser, cfg.User, 0)
	pipe.Set(ctx, KeyConfigIMAPPass, cfg.Pass, 0)
	_, err := pipe.Exec(ctx)
	return err
}

// GetIMAPConfig returns the stored override, or nil when none is set.
func (s *Store) GetIMAPConfig(ctx context.Context) (*IMAPSettings, error) {
	pipe := s.client.Pipeline()
	hostCmd := pipe.Get(ctx, KeyConfigIMAPHost)
	portCmd := pipe.Get(ctx, KeyConfigIMAPPort)
	userCmd := pipe.Get(ctx, KeyConfigIMAPUser)
	passCmd := pipe.Get(ctx, KeyConfigIMAPPass)

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, err
	}

	host, _ := hostCmd.Result()
	if host == "" {
		return nil, nil
	}
	port, _ := portCmd.Int()
	user, _ := userCmd.Result()
	pass, _ := passCmd.Result()

	return &IMAPSettings{Host: host, Port: port, User: user, Pass: pass}, nil
}
