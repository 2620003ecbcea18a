package sqlstore

import (
	"context"
	"time"

	"relaymail/internal/domain"
)

const conversationColumns = `id, user_id, contact_id, job_id, subject, user_relay_address,
	contact_relay_address, status, created_at, last_message_at`

// ActiveConversation finds the non-blocked conversation for the triple. A nil
// jobID only matches conversations without a job.
func (s *Store) ActiveConversation(ctx context.Context, userID, contactID string, jobID *string) (*domain.Conversation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	job := ""
	if jobID != nil {
		job = *jobID
	}

	var c domain.Conversation
	err := s.db.GetContext(ctx, &c, s.db.Rebind(
		`SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = ? AND contact_id = ? AND COALESCE(job_id, '') = ? AND status = ?`),
		userID, contactID, job, string(domain.ConversationActive))
	if err != nil {
		return nil, notFound(err, "conversation %s/%s", userID, contactID)
	}
	return &c, nil
}

// InsertConversation writes the row unless an active conversation for the
// same triple exists. It reports whether a row was written.
func (s *Store) InsertConversation(ctx context.Context, c domain.Conversation) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO conversations (id, user_id, contact_id, job_id, subject, user_relay_address,
			contact_relay_address, status, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		c.ID, c.UserID, c.ContactID, c.JobID, c.Subject, c.UserRelayAddress,
		c.ContactRelayAddress, string(c.Status), c.CreatedAt.UTC(), c.LastMessageAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LatestConversation returns the most recently active, non-blocked
// conversation for a user/contact pair, whatever its job.
func (s *Store) LatestConversation(ctx context.Context, userID, contactID string) (*domain.Conversation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var c domain.Conversation
	err := s.db.GetContext(ctx, &c, s.db.Rebind(
		`SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = ? AND contact_id = ? AND status = ?
		ORDER BY COALESCE(last_message_at, created_at) DESC, created_at DESC
		LIMIT 1`),
		userID, contactID, string(domain.ConversationActive))
	if err != nil {
		return nil, notFound(err, "conversation %s/%s", userID, contactID)
	}
	return &c, nil
}

func (s *Store) Conversation(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var c domain.Conversation
	err := s.db.GetContext(ctx, &c, s.db.Rebind(
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "conversation %s", id)
	}
	return &c, nil
}

func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`), at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(errNoRows, "conversation %s", id)
	}
	return nil
}

// BlockConversation marks a conversation blocked. Blocking twice is a no-op.
func (s *Store) BlockConversation(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE conversations SET status = ? WHERE id = ?`),
		string(domain.ConversationBlocked), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(errNoRows, "conversation %s", id)
	}
	return nil
}

// ListConversations pages through one participant's conversations, most
// recent first. It never returns a nil slice.
func (s *Store) ListConversations(ctx context.Context, t domain.EntityType, entityID string, limit, offset int) ([]domain.Conversation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	limit, offset = domain.ClampPage(limit, offset)
	column := "user_id"
	if t == domain.EntityContact {
		column = "contact_id"
	}

	out := []domain.Conversation{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(
		`SELECT `+conversationColumns+` FROM conversations
		WHERE `+column+` = ?
		ORDER BY COALESCE(last_message_at, created_at) DESC, id DESC
		LIMIT ? OFFSET ?`),
		entityID, limit, offset)
	return out, err
}
