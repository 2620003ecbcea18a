package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"relaymail/internal/domain"
)

const messageColumns = `id, conversation_id, direction, from_type, from_id, to_type, to_id,
	from_relay_address, to_relay_address, from_real_email, to_real_email, subject, text_body,
	html_body, external_message_id, provider_message_id, in_reply_to, status, is_spam,
	spam_score, created_at, sent_at, delivered_at, read_at`

// stampColumns lists the timestamps a status stamps, oldest first. Reaching a
// later status through skipped callbacks still fills the earlier stamps.
var stampColumns = map[domain.Status][]string{
	domain.StatusSent:      {"sent_at"},
	domain.StatusDelivered: {"sent_at", "delivered_at"},
	domain.StatusRead:      {"sent_at", "delivered_at", "read_at"},
	domain.StatusBounced:   {"sent_at", "delivered_at"},
}

// InsertMessage writes a new message row. When the (conversation,
// external_message_id) pair already exists nothing is written and false is
// returned.
func (s *Store) InsertMessage(ctx context.Context, m domain.Message) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		m.ID, m.ConversationID, string(m.Direction), string(m.FromType), m.FromID,
		string(m.ToType), m.ToID, m.FromRelayAddress, m.ToRelayAddress, m.FromRealEmail,
		m.ToRealEmail, m.Subject, m.Text, m.HTML, m.ExternalMessageID, m.ProviderMessageID,
		m.InReplyTo, string(m.Status), m.IsSpam, m.SpamScore, m.CreatedAt.UTC(), m.SentAt,
		m.DeliveredAt, m.ReadAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) Message(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var m domain.Message
	err := s.db.GetContext(ctx, &m, s.db.Rebind(
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "message %s", id)
	}
	return &m, nil
}

// MessageByExternalID finds an inbound message by its conversation-scoped
// idempotency key.
func (s *Store) MessageByExternalID(ctx context.Context, conversationID, externalID string) (*domain.Message, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var m domain.Message
	err := s.db.GetContext(ctx, &m, s.db.Rebind(
		`SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND external_message_id = ?`),
		conversationID, externalID)
	if err != nil {
		return nil, notFound(err, "message %s", externalID)
	}
	return &m, nil
}

// MessageByProviderID finds the message a provider callback refers to.
func (s *Store) MessageByProviderID(ctx context.Context, providerID string) (*domain.Message, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var m domain.Message
	err := s.db.GetContext(ctx, &m, s.db.Rebind(
		`SELECT `+messageColumns+` FROM messages
		WHERE provider_message_id = ?
		ORDER BY created_at DESC LIMIT 1`), providerID)
	if err != nil {
		return nil, notFound(err, "message with provider id %s", providerID)
	}
	return &m, nil
}

// MessageByAnyMessageID matches a Message-Id seen on the wire, either one we
// received or one we sent.
func (s *Store) MessageByAnyMessageID(ctx context.Context, messageID string) (*domain.Message, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var m domain.Message
	err := s.db.GetContext(ctx, &m, s.db.Rebind(
		`SELECT `+messageColumns+` FROM messages
		WHERE provider_message_id = ? OR external_message_id = ?
		ORDER BY created_at DESC LIMIT 1`), messageID, messageID)
	if err != nil {
		return nil, notFound(err, "message %s", messageID)
	}
	return &m, nil
}

// SetProviderMessageID records the id the provider assigned to our send.
func (s *Store) SetProviderMessageID(ctx context.Context, id, providerID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE messages SET provider_message_id = ? WHERE id = ? AND provider_message_id IS NULL`),
		providerID, id)
	return err
}

// TransitionStatus moves a message to status `to` only while its current
// status is one of `from`, stamping the matching timestamps in the same
// statement. It reports whether the row changed.
func (s *Store) TransitionStatus(ctx context.Context, id string, to domain.Status, from []domain.Status, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	set := "status = ?"
	args := []interface{}{string(to)}
	for _, col := range stampColumns[to] {
		set += fmt.Sprintf(", %s = COALESCE(%s, ?)", col, col)
		args = append(args, at.UTC())
	}
	prev := make([]string, len(from))
	for i, st := range from {
		prev[i] = string(st)
	}
	args = append(args, id, prev)

	query, qargs, err := sqlx.In(`UPDATE messages SET `+set+` WHERE id = ? AND status IN (?)`, args...)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), qargs...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListMessages pages through a conversation oldest first. It never returns a
// nil slice.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	limit, offset = domain.ClampPage(limit, offset)
	out := []domain.Message{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(
		`SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`),
		conversationID, limit, offset)
	return out, err
}
