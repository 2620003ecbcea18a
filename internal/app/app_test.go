package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaymail/internal/config"
	"relaymail/internal/domain"
	"relaymail/internal/mailer"
	"relaymail/internal/sqlstore"
)

func testConfig(t *testing.T) *config.Config {
	mr := miniredis.RunT(t)
	return &config.Config{
		DatabaseDriver: config.DriverSQLite,
		DatabaseURL:    ":memory:",
		RedisURL:       "redis://" + mr.Addr(),
		RelayDomain:    "relay.test",
		UserPrefix:     "u-",
		ContactPrefix:  "c-",
		MailerDriver:   config.MailerLog,
	}
}

func TestOpenWiresRelay(t *testing.T) {
	cfg := testConfig(t)
	a, err := Open(cfg)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.SQL.ApplySeed(ctx, sqlstore.Seed{
		Users: []domain.Person{{ID: "usr_1", Name: "Ada", Email: "ada@example.com"}},
	}))

	addr, err := a.Relay.Registry.Generate(ctx, domain.EntityUser, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "u-usr_1@relay.test", addr)
	assert.NoError(t, a.Redis.Ping(ctx))
}

func TestOpenBadRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "not-a-url"
	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestDispatcher(t *testing.T) {
	cfg := &config.Config{MailerDriver: config.MailerLog}
	assert.IsType(t, mailer.LogDispatcher{}, Dispatcher(cfg))

	cfg = &config.Config{MailerDriver: config.MailerSMTP, SMTPHost: "smtp.test", SMTPPort: 2525}
	assert.IsType(t, &mailer.SMTPDispatcher{}, Dispatcher(cfg))
}
