package sqlstore

import (
	"context"
	"strings"

	"relaymail/internal/domain"
)

const addressColumns = `id, address, entity_type, entity_id, active, created_at, deactivated_at`

// ActiveAddress returns the active mapping for an entity.
func (s *Store) ActiveAddress(ctx context.Context, t domain.EntityType, entityID string) (*domain.RelayAddress, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var a domain.RelayAddress
	err := s.db.GetContext(ctx, &a, s.db.Rebind(
		`SELECT `+addressColumns+` FROM relay_addresses
		WHERE entity_type = ? AND entity_id = ? AND active = ?`),
		string(t), entityID, true)
	if err != nil {
		return nil, notFound(err, "relay address for %s %s", t, entityID)
	}
	return &a, nil
}

// AddressByName looks an address up regardless of its active flag.
func (s *Store) AddressByName(ctx context.Context, address string) (*domain.RelayAddress, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var a domain.RelayAddress
	err := s.db.GetContext(ctx, &a, s.db.Rebind(
		`SELECT `+addressColumns+` FROM relay_addresses WHERE address = ?`),
		strings.ToLower(address))
	if err != nil {
		return nil, notFound(err, "relay address %s", address)
	}
	return &a, nil
}

// InsertAddress inserts the mapping unless an active mapping for the entity
// or the same address already exists. It reports whether a row was written.
func (s *Store) InsertAddress(ctx context.Context, a domain.RelayAddress) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO relay_addresses (id, address, entity_type, entity_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		a.ID, strings.ToLower(a.Address), string(a.EntityType), a.EntityID, a.Active, a.CreatedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountAddresses counts every mapping ever issued to an entity, active or not.
func (s *Store) CountAddresses(ctx context.Context, t domain.EntityType, entityID string) (int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM relay_addresses WHERE entity_type = ? AND entity_id = ?`),
		string(t), entityID)
	return n, err
}

// DeactivateAddress flips an active mapping off. Addresses are never reused.
func (s *Store) DeactivateAddress(ctx context.Context, address string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE relay_addresses SET active = ?, deactivated_at = ?
		WHERE address = ? AND active = ?`),
		false, s.now(), strings.ToLower(address), true)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(errNoRows, "active relay address %s", address)
	}
	return nil
}
