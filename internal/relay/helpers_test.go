package relay_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"relaymail/internal/mailer"
	"relaymail/internal/relay"
	"relaymail/internal/sqlstore"
	"relaymail/internal/testutil"
)

const relayDomain = "relay.test"

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []mailer.Request
	err  error
}

func (f *fakeDispatcher) Send(_ context.Context, req mailer.Request) (mailer.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return mailer.Receipt{}, f.err
	}
	f.sent = append(f.sent, req)
	return mailer.Receipt{ProviderMessageID: fmt.Sprintf("<fwd-%d@%s>", len(f.sent), relayDomain)}, nil
}

func (f *fakeDispatcher) requests() []mailer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailer.Request(nil), f.sent...)
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *memCounter) IncrCounter(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[name]++
	return nil
}

func (c *memCounter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

type fixture struct {
	store      *sqlstore.Store
	svc        *relay.Service
	dispatcher *fakeDispatcher
	counter    *memCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.NewTestStore(t)
	testutil.SeedPlatform(t, s)

	d := &fakeDispatcher{}
	c := &memCounter{}
	cfg := relay.Config{
		Domain:        relayDomain,
		UserPrefix:    "u-",
		ContactPrefix: "c-",
		SendTimeout:   time.Second,
	}
	return &fixture{store: s, svc: relay.New(cfg, s, d, relay.WithCounter(c)), dispatcher: d, counter: c}
}

func strPtr(s string) *string { return &s }
