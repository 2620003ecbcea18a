package domain

import "time"

type EntityType string

const (
	EntityUser    EntityType = "user"
	EntityContact EntityType = "contact"
)

func (t EntityType) Valid() bool {
	return t == EntityUser || t == EntityContact
}

// Counterpart returns the other side of a user/contact pair.
func (t EntityType) Counterpart() EntityType {
	if t == EntityUser {
		return EntityContact
	}
	return EntityUser
}

type Direction string

const (
	DirectionUserToContact Direction = "user_to_contact"
	DirectionContactToUser Direction = "contact_to_user"
)

type ConversationStatus string

const (
	ConversationActive  ConversationStatus = "active"
	ConversationBlocked ConversationStatus = "blocked"
)

// Person is a record owned by the user or contact directory.
type Person struct {
	ID      string `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Email   string `json:"email" db:"email"`
	Company string `json:"company,omitempty" db:"company"`
}

// Entity is a resolved relay participant.
type Entity struct {
	Type         EntityType `json:"type"`
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Company      string     `json:"company,omitempty"`
	RelayAddress string     `json:"relay_address"`
}

type RelayAddress struct {
	ID            string     `json:"id" db:"id"`
	Address       string     `json:"address" db:"address"`
	EntityType    EntityType `json:"entity_type" db:"entity_type"`
	EntityID      string     `json:"entity_id" db:"entity_id"`
	Active        bool       `json:"active" db:"active"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`
}

type Conversation struct {
	ID                  string             `json:"id" db:"id"`
	UserID              string             `json:"user_id" db:"user_id"`
	ContactID           string             `json:"contact_id" db:"contact_id"`
	JobID               *string            `json:"job_id,omitempty" db:"job_id"`
	Subject             string             `json:"subject" db:"subject"`
	UserRelayAddress    string             `json:"user_relay_address" db:"user_relay_address"`
	ContactRelayAddress string             `json:"contact_relay_address" db:"contact_relay_address"`
	Status              ConversationStatus `json:"status" db:"status"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
	LastMessageAt       *time.Time         `json:"last_message_at,omitempty" db:"last_message_at"`
}

// HasParticipant reports whether the given entity is one of the two sides.
func (c *Conversation) HasParticipant(t EntityType, id string) bool {
	switch t {
	case EntityUser:
		return c.UserID == id
	case EntityContact:
		return c.ContactID == id
	}
	return false
}

type Message struct {
	ID                string     `json:"id" db:"id"`
	ConversationID    string     `json:"conversation_id" db:"conversation_id"`
	Direction         Direction  `json:"direction" db:"direction"`
	FromType          EntityType `json:"from_type" db:"from_type"`
	FromID            string     `json:"from_id" db:"from_id"`
	ToType            EntityType `json:"to_type" db:"to_type"`
	ToID              string     `json:"to_id" db:"to_id"`
	FromRelayAddress  string     `json:"from_relay_address" db:"from_relay_address"`
	ToRelayAddress    string     `json:"to_relay_address" db:"to_relay_address"`
	FromRealEmail     string     `json:"-" db:"from_real_email"`
	ToRealEmail       string     `json:"-" db:"to_real_email"`
	Subject           string     `json:"subject" db:"subject"`
	Text              string     `json:"text" db:"text_body"`
	HTML              string     `json:"html,omitempty" db:"html_body"`
	ExternalMessageID *string    `json:"external_message_id,omitempty" db:"external_message_id"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty" db:"provider_message_id"`
	InReplyTo         *string    `json:"in_reply_to,omitempty" db:"in_reply_to"`
	Status            Status     `json:"status" db:"status"`
	IsSpam            bool       `json:"is_spam" db:"is_spam"`
	SpamScore         float64    `json:"spam_score" db:"spam_score"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	SentAt            *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt            *time.Time `json:"read_at,omitempty" db:"read_at"`
}
