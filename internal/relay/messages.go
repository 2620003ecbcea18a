package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relaymail/internal/domain"
	"relaymail/internal/log"
)

// Messages persists messages and owns the delivery status machine. Both the
// synchronous result of a send and later provider callbacks go through
// UpdateStatus.
type Messages struct {
	store MessageStore
	now   func() time.Time
}

func NewMessages(store MessageStore) *Messages {
	return &Messages{store: store, now: utcNow}
}

// Store inserts m as a new pending message and returns the persisted row.
// When m carries an external message id already stored for the
// conversation, nothing is written and the existing row is returned with
// stored=false.
func (s *Messages) Store(ctx context.Context, m domain.Message) (msg *domain.Message, stored bool, err error) {
	if m.ConversationID == "" || m.FromID == "" || m.ToID == "" {
		return nil, false, fmt.Errorf("%w: conversation and participants are required", domain.ErrValidation)
	}
	if m.ExternalMessageID != nil && *m.ExternalMessageID == "" {
		m.ExternalMessageID = nil
	}

	if m.ExternalMessageID != nil {
		prev, err := s.store.MessageByExternalID(ctx, m.ConversationID, *m.ExternalMessageID)
		if err == nil {
			return prev, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
	}

	m.ID = newID("msg_")
	m.Status = domain.StatusPending
	m.CreatedAt = s.now()
	m.SentAt, m.DeliveredAt, m.ReadAt = nil, nil, nil

	inserted, err := s.store.InsertMessage(ctx, m)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		// lost a race against a retry of the same delivery
		prev, err := s.store.MessageByExternalID(ctx, m.ConversationID, *m.ExternalMessageID)
		if err != nil {
			return nil, false, err
		}
		return prev, false, nil
	}
	return &m, true, nil
}

func (s *Messages) Get(ctx context.Context, id string) (*domain.Message, error) {
	return s.store.Message(ctx, id)
}

// UpdateStatus moves a message forward to status to. Requesting the current
// status is a no-op; a status not reachable from the current one fails with
// ErrInvalidTransition. The check and the write are a single statement, so
// concurrent callbacks cannot move a message backward.
func (s *Messages) UpdateStatus(ctx context.Context, id string, to domain.Status) (*domain.Message, error) {
	changed, err := s.store.TransitionStatus(ctx, id, to, domain.Predecessors(to), s.now())
	if err != nil {
		return nil, err
	}
	m, err := s.store.Message(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed || m.Status == to {
		if changed {
			log.WithFields(log.Fields{"message_id": id, "status": to}).Debug("relay: status changed")
		}
		return m, nil
	}
	return m, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, m.Status, to)
}

// UpdateStatusByProviderID applies a provider delivery callback.
func (s *Messages) UpdateStatusByProviderID(ctx context.Context, providerID string, to domain.Status) (*domain.Message, error) {
	m, err := s.store.MessageByProviderID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return s.UpdateStatus(ctx, m.ID, to)
}

// MarkRead is a read receipt from the message's recipient. Other
// participants cannot mark it; provider-side statuses arrive by webhook.
func (s *Messages) MarkRead(ctx context.Context, id string, t domain.EntityType, entityID string) (*domain.Message, error) {
	m, err := s.store.Message(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.ToType != t || m.ToID != entityID {
		return nil, fmt.Errorf("%w: only the recipient can mark message %s read", domain.ErrUnauthorized, id)
	}
	return s.UpdateStatus(ctx, id, domain.StatusRead)
}

// MarkSent records the provider's id for the message and moves it to sent.
func (s *Messages) MarkSent(ctx context.Context, id, providerID string) (*domain.Message, error) {
	if providerID != "" {
		if err := s.store.SetProviderMessageID(ctx, id, providerID); err != nil {
			return nil, err
		}
	}
	return s.UpdateStatus(ctx, id, domain.StatusSent)
}

// History pages a conversation oldest first. Empty conversations yield an
// empty slice.
func (s *Messages) History(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error) {
	return s.store.ListMessages(ctx, conversationID, limit, offset)
}
