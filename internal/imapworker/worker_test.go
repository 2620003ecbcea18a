package imapworker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaymail/internal/config"
	"relaymail/internal/domain"
	"relaymail/internal/redisstore"
	"relaymail/internal/relay"
)

type fakeProcessor struct {
	got []domain.InboundEmail
	err error
}

func (f *fakeProcessor) Process(_ context.Context, in domain.InboundEmail) (*relay.InboundResult, error) {
	f.got = append(f.got, in)
	if f.err != nil {
		return nil, f.err
	}
	return &relay.InboundResult{Message: &domain.Message{ID: "msg_1"}}, nil
}

func newWorker(t *testing.T, proc Processor) (*Worker, *redisstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rs.Close() })

	cfg := &config.Config{RelayDomain: "relay.test", MaxEmailBytes: 4096, IMAPHost: "imap.static.test", IMAPPort: 993}
	return New(cfg, rs, proc), rs
}

const raw = "From: Rita <rita@recruit.io>\r\n" +
	"Delivered-To: u-usr_1@relay.test\r\n" +
	"To: someone@else.test\r\n" +
	"Subject: Re: role\r\n" +
	"Message-Id: <r1@recruit.io>\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Tuesday works.\r\n"

func TestHandleFeedsProcessor(t *testing.T) {
	proc := &fakeProcessor{}
	w, rs := newWorker(t, proc)
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, 11, strings.NewReader(raw)))
	require.Len(t, proc.got, 1)
	assert.Equal(t, "u-usr_1@relay.test", proc.got[0].Recipient)
	assert.Equal(t, "rita@recruit.io", proc.got[0].Sender)
	assert.Equal(t, "<r1@recruit.io>", proc.got[0].MessageID)

	done, err := rs.IsUIDProcessed(ctx, folder, 11)
	require.NoError(t, err)
	assert.True(t, done)

	// already processed uids are not handed over again
	require.NoError(t, w.Handle(ctx, 11, strings.NewReader(raw)))
	assert.Len(t, proc.got, 1)
}

func TestHandleSkipsPermanentFailures(t *testing.T) {
	proc := &fakeProcessor{err: fmt.Errorf("%w: recipient", domain.ErrNotFound)}
	w, rs := newWorker(t, proc)
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, 1, strings.NewReader(raw)))
	done, _ := rs.IsUIDProcessed(ctx, folder, 1)
	assert.True(t, done)

	big := raw + strings.Repeat("x", 5000)
	require.NoError(t, w.Handle(ctx, 2, strings.NewReader(big)))
	done, _ = rs.IsUIDProcessed(ctx, folder, 2)
	assert.True(t, done)
}

func TestHandleKeepsTransientFailures(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("database is locked")}
	w, rs := newWorker(t, proc)
	ctx := context.Background()

	assert.Error(t, w.Handle(ctx, 3, strings.NewReader(raw)))
	done, _ := rs.IsUIDProcessed(ctx, folder, 3)
	assert.False(t, done)
}

func TestSettingsPreferOverride(t *testing.T) {
	w, rs := newWorker(t, &fakeProcessor{})
	ctx := context.Background()

	assert.Equal(t, "imap.static.test", w.settings(ctx).Host)

	require.NoError(t, rs.UpdateIMAPConfig(ctx, redisstore.IMAPSettings{Host: "imap.override.test", Port: 1993, User: "u", Pass: "p"}))
	s := w.settings(ctx)
	assert.Equal(t, "imap.override.test", s.Host)
	assert.Equal(t, 1993, s.Port)
}
