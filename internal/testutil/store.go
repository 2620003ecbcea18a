package testutil

import (
	"context"
	"testing"
	"time"

	"relaymail/internal/domain"
	"relaymail/internal/sqlstore"
)

// NewTestStore creates an in-memory SQLite store with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	s, err := sqlstore.Open("sqlite", ":memory:", 5*time.Second)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Fixture ids used by SeedPlatform.
const (
	UserID    = "usr_1"
	UserID2   = "usr_2"
	ContactID = "ct_1"
	JobID     = "job_1"
)

// SeedPlatform loads a small directory: two users, one recruiter with a
// job the first user applied to and has unlocked.
func SeedPlatform(t *testing.T, s *sqlstore.Store) {
	t.Helper()

	err := s.ApplySeed(context.Background(), sqlstore.Seed{
		Users: []domain.Person{
			{ID: UserID, Name: "Ada Lovelace", Email: "ada@example.com"},
			{ID: UserID2, Name: "Grace Hopper", Email: "grace@example.com"},
		},
		Contacts: []domain.Person{
			{ID: ContactID, Name: "Rita Recruiter", Email: "Rita@Recruit.io", Company: "Recruit.io"},
		},
		Jobs:         []sqlstore.SeedJob{{ID: JobID, Title: "Backend Engineer", Company: "Recruit.io"}},
		Applications: []sqlstore.SeedApp{{UserID: UserID, JobID: JobID}},
		Unlocks:      []sqlstore.SeedUnlock{{UserID: UserID, ContactID: ContactID}},
	})
	if err != nil {
		t.Fatalf("seeding platform: %v", err)
	}
}
