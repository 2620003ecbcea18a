package sqlstore

import (
	"context"
	"fmt"
)

type migration struct {
	version int
	stmts   []string
}

// The SQL below is restricted to what SQLite and Postgres both accept.
var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id    TEXT PRIMARY KEY,
				name  TEXT NOT NULL,
				email TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS users_email ON users (lower(email))`,
			`CREATE TABLE IF NOT EXISTS contacts (
				id      TEXT PRIMARY KEY,
				name    TEXT NOT NULL,
				email   TEXT NOT NULL,
				company TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS contacts_email ON contacts (lower(email))`,
			`CREATE TABLE IF NOT EXISTS jobs (
				id      TEXT PRIMARY KEY,
				title   TEXT NOT NULL,
				company TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS job_applications (
				user_id    TEXT NOT NULL,
				job_id     TEXT NOT NULL,
				status     TEXT NOT NULL DEFAULT 'applied',
				updated_at TIMESTAMP NULL,
				PRIMARY KEY (user_id, job_id)
			)`,
			`CREATE TABLE IF NOT EXISTS contact_unlocks (
				user_id     TEXT NOT NULL,
				contact_id  TEXT NOT NULL,
				unlocked_at TIMESTAMP NOT NULL,
				PRIMARY KEY (user_id, contact_id)
			)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`CREATE TABLE relay_addresses (
				id             TEXT PRIMARY KEY,
				address        TEXT NOT NULL UNIQUE,
				entity_type    TEXT NOT NULL,
				entity_id      TEXT NOT NULL,
				active         BOOLEAN NOT NULL,
				created_at     TIMESTAMP NOT NULL,
				deactivated_at TIMESTAMP NULL
			)`,
			`CREATE UNIQUE INDEX relay_addresses_active_entity
				ON relay_addresses (entity_type, entity_id) WHERE active`,
			`CREATE TABLE conversations (
				id                    TEXT PRIMARY KEY,
				user_id               TEXT NOT NULL,
				contact_id            TEXT NOT NULL,
				job_id                TEXT NULL,
				subject               TEXT NOT NULL,
				user_relay_address    TEXT NOT NULL,
				contact_relay_address TEXT NOT NULL,
				status                TEXT NOT NULL,
				created_at            TIMESTAMP NOT NULL,
				last_message_at       TIMESTAMP NULL
			)`,
			`CREATE UNIQUE INDEX conversations_active_triple
				ON conversations (user_id, contact_id, (COALESCE(job_id, ''))) WHERE status = 'active'`,
			`CREATE INDEX conversations_pair ON conversations (user_id, contact_id, last_message_at)`,
			`CREATE INDEX conversations_contact ON conversations (contact_id, last_message_at)`,
			`CREATE TABLE messages (
				id                  TEXT PRIMARY KEY,
				conversation_id     TEXT NOT NULL REFERENCES conversations (id),
				direction           TEXT NOT NULL,
				from_type           TEXT NOT NULL,
				from_id             TEXT NOT NULL,
				to_type             TEXT NOT NULL,
				to_id               TEXT NOT NULL,
				from_relay_address  TEXT NOT NULL,
				to_relay_address    TEXT NOT NULL,
				from_real_email     TEXT NOT NULL,
				to_real_email       TEXT NOT NULL,
				subject             TEXT NOT NULL,
				text_body           TEXT NOT NULL,
				html_body           TEXT NOT NULL DEFAULT '',
				external_message_id TEXT NULL,
				provider_message_id TEXT NULL,
				in_reply_to         TEXT NULL,
				status              TEXT NOT NULL,
				is_spam             BOOLEAN NOT NULL DEFAULT FALSE,
				spam_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at          TIMESTAMP NOT NULL,
				sent_at             TIMESTAMP NULL,
				delivered_at        TIMESTAMP NULL,
				read_at             TIMESTAMP NULL
			)`,
			`CREATE UNIQUE INDEX messages_external_id
				ON messages (conversation_id, external_message_id) WHERE external_message_id IS NOT NULL`,
			`CREATE INDEX messages_conversation ON messages (conversation_id, created_at)`,
			`CREATE INDEX messages_provider_id ON messages (provider_message_id)`,
		},
	},
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order, each in its own transaction.
func (s *Store) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}

	var current int
	if err := s.db.GetContext(ctx, &current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("applying migration v%d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"), m.version, s.now()); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", m.version, err)
		}
	}
	return nil
}
