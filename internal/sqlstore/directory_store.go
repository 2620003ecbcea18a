package sqlstore

import (
	"context"

	"github.com/jmoiron/sqlx"

	"relaymail/internal/domain"
)

// The users, contacts, jobs, job_applications and contact_unlocks tables
// belong to the wider platform. The relay only reads them, apart from the
// "replied" transition on job applications.

func (s *Store) User(ctx context.Context, id string) (*domain.Person, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var p domain.Person
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT id, name, email FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "user %s", id)
	}
	return &p, nil
}

// UserByEmail matches the real email case-insensitively.
func (s *Store) UserByEmail(ctx context.Context, email string) (*domain.Person, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var p domain.Person
	err := s.db.GetContext(ctx, &p, s.db.Rebind(
		`SELECT id, name, email FROM users WHERE lower(email) = lower(?) ORDER BY id LIMIT 1`), email)
	if err != nil {
		return nil, notFound(err, "user with email %s", email)
	}
	return &p, nil
}

func (s *Store) Contact(ctx context.Context, id string) (*domain.Person, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var p domain.Person
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT id, name, email, company FROM contacts WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "contact %s", id)
	}
	return &p, nil
}

// ContactByEmail matches the real email case-insensitively.
func (s *Store) ContactByEmail(ctx context.Context, email string) (*domain.Person, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var p domain.Person
	err := s.db.GetContext(ctx, &p, s.db.Rebind(
		`SELECT id, name, email, company FROM contacts WHERE lower(email) = lower(?) ORDER BY id LIMIT 1`), email)
	if err != nil {
		return nil, notFound(err, "contact with email %s", email)
	}
	return &p, nil
}

func (s *Store) JobTitle(ctx context.Context, jobID string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var title string
	err := s.db.GetContext(ctx, &title, s.db.Rebind(`SELECT title FROM jobs WHERE id = ?`), jobID)
	if err != nil {
		return "", notFound(err, "job %s", jobID)
	}
	return title, nil
}

// HasUnlocked is the entitlement check: has the user paid to message the contact.
func (s *Store) HasUnlocked(ctx context.Context, userID, contactID string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM contact_unlocks WHERE user_id = ? AND contact_id = ?`), userID, contactID)
	return n > 0, err
}

// preReplyStatuses are the application states a contact reply may advance.
// Later states such as "interviewing" or "hired" are left alone.
var preReplyStatuses = []string{"applied", "viewed"}

// MarkReplied advances the user's application for the job to "replied". It
// reports whether anything changed; repeated calls are no-ops.
func (s *Store) MarkReplied(ctx context.Context, userID, jobID string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query, args, err := sqlx.In(
		`UPDATE job_applications SET status = 'replied', updated_at = ?
		WHERE user_id = ? AND job_id = ? AND status IN (?)`,
		s.now(), userID, jobID, preReplyStatuses)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) ApplicationStatus(ctx context.Context, userID, jobID string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var status string
	err := s.db.GetContext(ctx, &status, s.db.Rebind(
		`SELECT status FROM job_applications WHERE user_id = ? AND job_id = ?`), userID, jobID)
	if err != nil {
		return "", notFound(err, "application %s/%s", userID, jobID)
	}
	return status, nil
}
