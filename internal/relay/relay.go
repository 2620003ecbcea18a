// Package relay is the privacy-preserving message relay: relay address
// registry, conversation correlation, message status tracking, and the
// inbound and outbound mail flows built on top of them.
//
// All synchronization happens in the store. Every type here is safe for
// concurrent use and holds no per-request state.
package relay

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"relaymail/internal/domain"
)

// Config is the relay's explicit configuration.
type Config struct {
	Domain        string
	UserPrefix    string
	ContactPrefix string
	SendTimeout   time.Duration
}

func (c Config) prefix(t domain.EntityType) string {
	if t == domain.EntityContact {
		return c.ContactPrefix
	}
	return c.UserPrefix
}

func (c Config) sendTimeout() time.Duration {
	if c.SendTimeout <= 0 {
		return 15 * time.Second
	}
	return c.SendTimeout
}

type AddressStore interface {
	ActiveAddress(ctx context.Context, t domain.EntityType, entityID string) (*domain.RelayAddress, error)
	AddressByName(ctx context.Context, address string) (*domain.RelayAddress, error)
	InsertAddress(ctx context.Context, a domain.RelayAddress) (bool, error)
	CountAddresses(ctx context.Context, t domain.EntityType, entityID string) (int, error)
	DeactivateAddress(ctx context.Context, address string) error
}

type ConversationStore interface {
	ActiveConversation(ctx context.Context, userID, contactID string, jobID *string) (*domain.Conversation, error)
	InsertConversation(ctx context.Context, c domain.Conversation) (bool, error)
	LatestConversation(ctx context.Context, userID, contactID string) (*domain.Conversation, error)
	Conversation(ctx context.Context, id string) (*domain.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	BlockConversation(ctx context.Context, id string) error
	ListConversations(ctx context.Context, t domain.EntityType, entityID string, limit, offset int) ([]domain.Conversation, error)
}

type MessageStore interface {
	InsertMessage(ctx context.Context, m domain.Message) (bool, error)
	Message(ctx context.Context, id string) (*domain.Message, error)
	MessageByExternalID(ctx context.Context, conversationID, externalID string) (*domain.Message, error)
	MessageByProviderID(ctx context.Context, providerID string) (*domain.Message, error)
	MessageByAnyMessageID(ctx context.Context, messageID string) (*domain.Message, error)
	SetProviderMessageID(ctx context.Context, id, providerID string) error
	TransitionStatus(ctx context.Context, id string, to domain.Status, from []domain.Status, at time.Time) (bool, error)
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error)
}

// Directory is the platform's user and contact records.
type Directory interface {
	User(ctx context.Context, id string) (*domain.Person, error)
	UserByEmail(ctx context.Context, email string) (*domain.Person, error)
	Contact(ctx context.Context, id string) (*domain.Person, error)
	ContactByEmail(ctx context.Context, email string) (*domain.Person, error)
}

// Jobs covers the job title lookup and the "replied" application write.
type Jobs interface {
	JobTitle(ctx context.Context, jobID string) (string, error)
	MarkReplied(ctx context.Context, userID, jobID string) (bool, error)
}

// Entitlements answers whether a user has unlocked a contact.
type Entitlements interface {
	HasUnlocked(ctx context.Context, userID, contactID string) (bool, error)
}

// Store is everything the relay persists or consults. *sqlstore.Store
// satisfies it.
type Store interface {
	AddressStore
	ConversationStore
	MessageStore
	Directory
	Jobs
	Entitlements
}

// Counter records relay activity for the admin stats. Errors are ignored.
type Counter interface {
	IncrCounter(ctx context.Context, name string) error
}

// Counter names.
const (
	CountInbound    = "inbound"
	CountOutbound   = "outbound"
	CountSpam       = "spam"
	CountDropped    = "dropped"
	CountDuplicates = "duplicates"
	CountFailed     = "failed"
)

type nopCounter struct{}

func (nopCounter) IncrCounter(context.Context, string) error { return nil }

func newID(prefix string) string {
	return prefix + strings.ToLower(ulid.Make().String())
}

func utcNow() time.Time {
	return time.Now().UTC()
}
