package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"relaymail/internal/domain"
	"relaymail/internal/log"
)

// Conversations correlates a user, a contact and an optional job into one
// active thread.
type Conversations struct {
	store    ConversationStore
	registry *Registry
	now      func() time.Time
}

func NewConversations(store ConversationStore, registry *Registry) *Conversations {
	return &Conversations{store: store, registry: registry, now: utcNow}
}

// GetOrCreate returns the active conversation for (userID, contactID, jobID),
// creating it if none exists. A nil jobID is its own identity, distinct from
// any job-scoped conversation for the same pair. Both relay addresses are
// issued before the row is written. When a concurrent caller wins the
// insert, its row is returned.
func (c *Conversations) GetOrCreate(ctx context.Context, userID, contactID string, jobID *string, subject string) (*domain.Conversation, error) {
	if userID == "" || contactID == "" {
		return nil, fmt.Errorf("%w: user and contact are required", domain.ErrValidation)
	}
	if jobID != nil && strings.TrimSpace(*jobID) == "" {
		jobID = nil
	}

	conv, err := c.store.ActiveConversation(ctx, userID, contactID, jobID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	userAddr, err := c.registry.Generate(ctx, domain.EntityUser, userID)
	if err != nil {
		return nil, fmt.Errorf("issuing user relay address: %w", err)
	}
	contactAddr, err := c.registry.Generate(ctx, domain.EntityContact, contactID)
	if err != nil {
		return nil, fmt.Errorf("issuing contact relay address: %w", err)
	}

	row := domain.Conversation{
		ID:                  newID("cv_"),
		UserID:              userID,
		ContactID:           contactID,
		JobID:               jobID,
		Subject:             subject,
		UserRelayAddress:    userAddr,
		ContactRelayAddress: contactAddr,
		Status:              domain.ConversationActive,
		CreatedAt:           c.now(),
	}
	inserted, err := c.store.InsertConversation(ctx, row)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return c.store.ActiveConversation(ctx, userID, contactID, jobID)
	}

	log.WithFields(log.Fields{"conversation_id": row.ID, "user_id": userID, "contact_id": contactID}).
		Info("relay: conversation created")
	return &row, nil
}

// Touch stamps lastMessageAt so listings order by recency.
func (c *Conversations) Touch(ctx context.Context, id string) error {
	return c.store.TouchConversation(ctx, id, c.now())
}

// LatestForPair returns the most recently active conversation between a user
// and a contact, whatever its job.
func (c *Conversations) LatestForPair(ctx context.Context, userID, contactID string) (*domain.Conversation, error) {
	return c.store.LatestConversation(ctx, userID, contactID)
}

func (c *Conversations) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	return c.store.Conversation(ctx, id)
}

// Authorize loads the conversation and checks the caller is one of its two
// participants.
func (c *Conversations) Authorize(ctx context.Context, id string, t domain.EntityType, entityID string) (*domain.Conversation, error) {
	conv, err := c.store.Conversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(t, entityID) {
		return nil, fmt.Errorf("%w: not a participant of conversation %s", domain.ErrUnauthorized, id)
	}
	return conv, nil
}

// Block stops the conversation from receiving inbound mail. A later send for
// the same triple starts a new conversation.
func (c *Conversations) Block(ctx context.Context, id string) error {
	if err := c.store.BlockConversation(ctx, id); err != nil {
		return err
	}
	log.WithFields(log.Fields{"conversation_id": id}).Info("relay: conversation blocked")
	return nil
}

// List pages one participant's conversations, most recent first.
func (c *Conversations) List(ctx context.Context, t domain.EntityType, entityID string, limit, offset int) ([]domain.Conversation, error) {
	return c.store.ListConversations(ctx, t, entityID, limit, offset)
}
