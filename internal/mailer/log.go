package mailer

import (
	"context"
	"time"

	"relaymail/internal/log"
)

// LogDispatcher accepts every message and only logs it. Used in development
// and when no SMTP host is configured.
type LogDispatcher struct{}

var _ Dispatcher = LogDispatcher{}

func (LogDispatcher) Send(ctx context.Context, req Request) (Receipt, error) {
	if req.ToRealEmail == "" {
		return Receipt{}, ErrMissingRecipient
	}
	_, id, err := compose(req, time.Now())
	if err != nil {
		return Receipt{}, err
	}
	log.WithFields(log.Fields{
		"from":       req.FromRelayAddress,
		"reply_to":   req.FromRelayAddress,
		"to_relay":   req.ToRelayAddress,
		"subject":    req.Subject,
		"message_id": id,
	}).Info("mailer: message accepted by log dispatcher")
	return Receipt{ProviderMessageID: "<" + id + ">"}, nil
}
