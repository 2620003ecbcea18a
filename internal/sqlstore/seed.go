package sqlstore

import (
	"context"

	"relaymail/internal/domain"
)

// Seed is a snapshot of platform records, used by the api binary's seed
// command and by tests to stand in for the external directories.
type Seed struct {
	Users        []domain.Person `json:"users"`
	Contacts     []domain.Person `json:"contacts"`
	Jobs         []SeedJob       `json:"jobs"`
	Applications []SeedApp       `json:"applications"`
	Unlocks      []SeedUnlock    `json:"unlocks"`
}

type SeedJob struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Company string `json:"company"`
}

type SeedApp struct {
	UserID string `json:"user_id"`
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type SeedUnlock struct {
	UserID    string `json:"user_id"`
	ContactID string `json:"contact_id"`
}

// ApplySeed upserts every record in a single transaction.
func (s *Store) ApplySeed(ctx context.Context, seed Seed) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range seed.Users {
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO users (id, name, email) VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email`),
			u.ID, u.Name, u.Email); err != nil {
			return err
		}
	}
	for _, c := range seed.Contacts {
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO contacts (id, name, email, company) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email, company = excluded.company`),
			c.ID, c.Name, c.Email, c.Company); err != nil {
			return err
		}
	}
	for _, j := range seed.Jobs {
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO jobs (id, title, company) VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET title = excluded.title, company = excluded.company`),
			j.ID, j.Title, j.Company); err != nil {
			return err
		}
	}
	for _, a := range seed.Applications {
		status := a.Status
		if status == "" {
			status = "applied"
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO job_applications (user_id, job_id, status, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, job_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`),
			a.UserID, a.JobID, status, s.now()); err != nil {
			return err
		}
	}
	for _, u := range seed.Unlocks {
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO contact_unlocks (user_id, contact_id, unlocked_at) VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING`),
			u.UserID, u.ContactID, s.now()); err != nil {
			return err
		}
	}
	return tx.Commit()
}
