// Package imapworker polls a catch-all mailbox for the relay domain and
// feeds each new message to the inbound processor. It is an alternative to
// the provider webhook for deployments that receive mail over IMAP.
package imapworker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"relaymail/internal/config"
	"relaymail/internal/domain"
	"relaymail/internal/log"
	"relaymail/internal/mailparse"
	"relaymail/internal/redisstore"
	"relaymail/internal/relay"
)

const (
	folder = "INBOX"
	// uidTTL keeps processed markers well past any redelivery window.
	uidTTL = 30 * 24 * time.Hour
)

// Processor is the inbound side of the relay.
type Processor interface {
	Process(ctx context.Context, in domain.InboundEmail) (*relay.InboundResult, error)
}

// State is the worker's bookkeeping, kept in Redis.
type State interface {
	IsUIDProcessed(ctx context.Context, folder string, uid uint32) (bool, error)
	MarkUIDProcessed(ctx context.Context, folder string, uid uint32, ttl time.Duration) error
	GetFolderLastUID(ctx context.Context, folder string) (uint32, error)
	SetFolderLastUID(ctx context.Context, folder string, uid uint32) error
	GetIMAPConfig(ctx context.Context) (*redisstore.IMAPSettings, error)
}

type Worker struct {
	cfg   *config.Config
	state State
	proc  Processor
}

func New(cfg *config.Config, state State, proc Processor) *Worker {
	return &Worker{cfg: cfg, state: state, proc: proc}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval())
	defer ticker.Stop()

	log.Info("imap worker started")

	if err := w.process(ctx); err != nil {
		log.Errorf("imap worker: poll failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("imap worker stopping")
			return
		case <-ticker.C:
			if err := w.process(ctx); err != nil {
				log.Errorf("imap worker: poll failed: %v", err)
			}
		}
	}
}

// settings prefers the override stored by the admin API.
func (w *Worker) settings(ctx context.Context) redisstore.IMAPSettings {
	s := redisstore.IMAPSettings{Host: w.cfg.IMAPHost, Port: w.cfg.IMAPPort, User: w.cfg.IMAPUser, Pass: w.cfg.IMAPPass}
	override, err := w.state.GetIMAPConfig(ctx)
	if err != nil {
		log.Warnf("imap worker: reading config override: %v", err)
		return s
	}
	if override != nil {
		return *override
	}
	return s
}

func (w *Worker) process(ctx context.Context) error {
	s := w.settings(ctx)
	if s.Host == "" {
		return errors.New("no imap host configured")
	}

	c, err := client.DialTLS(fmt.Sprintf("%s:%d", s.Host, s.Port), nil)
	if err != nil {
		return fmt.Errorf("failed to dial IMAP: %w", err)
	}
	defer c.Logout()
	c.Timeout = time.Minute

	if err := c.Login(s.User, s.Pass); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	mbox, err := c.Select(folder, false)
	if err != nil {
		return fmt.Errorf("failed to select %s: %w", folder, err)
	}

	lastUID, err := w.state.GetFolderLastUID(ctx, folder)
	if err != nil {
		return fmt.Errorf("failed to get last UID: %w", err)
	}
	if mbox.UidNext == 0 || lastUID+1 >= mbox.UidNext {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(lastUID+1, mbox.UidNext)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	newMaxUID := lastUID
	for msg := range messages {
		if msg.Uid > newMaxUID {
			newMaxUID = msg.Uid
		}
		body := msg.GetBody(section)
		if body == nil {
			log.Warnf("imap worker: server returned no body for uid %d", msg.Uid)
			continue
		}
		if err := w.Handle(ctx, msg.Uid, body); err != nil {
			log.Errorf("imap worker: uid %d: %v", msg.Uid, err)
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	if newMaxUID > lastUID {
		if err := w.state.SetFolderLastUID(ctx, folder, newMaxUID); err != nil {
			log.Errorf("imap worker: updating last UID: %v", err)
		}
	}
	return nil
}

// Handle parses one fetched message and hands it to the processor. Messages
// that can never succeed (too large, no relay recipient, unresolvable) are
// marked processed; transient failures are left for the next poll.
func (w *Worker) Handle(ctx context.Context, uid uint32, r io.Reader) error {
	processed, err := w.state.IsUIDProcessed(ctx, folder, uid)
	if err != nil {
		return fmt.Errorf("checking uid: %w", err)
	}
	if processed {
		return nil
	}

	in, err := mailparse.Parse(r, mailparse.Options{
		RelayDomain: w.cfg.RelayDomain,
		MaxBytes:    int64(w.cfg.MaxEmailBytes),
	})
	if err == nil {
		_, err = w.proc.Process(ctx, *in)
	}

	switch {
	case err == nil:
	case errors.Is(err, mailparse.ErrTooLarge), errors.Is(err, mailparse.ErrNoRecipient),
		errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
		log.WithFields(log.Fields{"uid": uid}).WithError(err).Warn("imap worker: message skipped")
	default:
		return err
	}
	return w.state.MarkUIDProcessed(ctx, folder, uid, uidTTL)
}
