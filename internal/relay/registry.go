package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"relaymail/internal/domain"
	"relaymail/internal/log"
	"relaymail/internal/mailparse"
)

// maxAllocAttempts bounds the retries when a candidate address is already
// taken by a retired mapping.
const maxAllocAttempts = 5

// Registry maps relay addresses to users and contacts.
type Registry struct {
	cfg   Config
	store AddressStore
	dir   Directory
	now   func() time.Time
}

func NewRegistry(cfg Config, store AddressStore, dir Directory) *Registry {
	return &Registry{cfg: cfg, store: store, dir: dir, now: utcNow}
}

// Generate returns the entity's active relay address, creating it on first
// use. Concurrent callers for the same entity all get the same address: the
// store accepts at most one active mapping per entity and losers re-read it.
func (r *Registry) Generate(ctx context.Context, t domain.EntityType, entityID string) (string, error) {
	if !t.Valid() || strings.TrimSpace(entityID) == "" {
		return "", fmt.Errorf("%w: entity type and id are required", domain.ErrValidation)
	}

	if a, err := r.active(ctx, t, entityID); err != nil || a != "" {
		return a, err
	}

	gen, err := r.store.CountAddresses(ctx, t, entityID)
	if err != nil {
		return "", err
	}
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		addr := r.format(t, entityID, gen+attempt)
		inserted, err := r.store.InsertAddress(ctx, domain.RelayAddress{
			ID:         newID("ra_"),
			Address:    addr,
			EntityType: t,
			EntityID:   entityID,
			Active:     true,
			CreatedAt:  r.now(),
		})
		if err != nil {
			return "", err
		}
		if inserted {
			log.WithFields(log.Fields{"entity_type": t, "entity_id": entityID, "address": addr}).
				Info("relay: address issued")
			return addr, nil
		}
		if a, err := r.active(ctx, t, entityID); err != nil || a != "" {
			return a, err
		}
	}
	return "", fmt.Errorf("relay: no free address for %s %s", t, entityID)
}

func (r *Registry) active(ctx context.Context, t domain.EntityType, entityID string) (string, error) {
	a, err := r.store.ActiveAddress(ctx, t, entityID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return a.Address, nil
}

// format builds {prefix}{entityId}@{domain}; later generations after a
// deactivation get a -n suffix so retired addresses are never reissued.
func (r *Registry) format(t domain.EntityType, entityID string, gen int) string {
	local := r.cfg.prefix(t) + strings.ToLower(entityID)
	if gen > 0 {
		local += "-" + strconv.Itoa(gen)
	}
	return local + "@" + strings.ToLower(r.cfg.Domain)
}

// Resolve looks up the entity behind a relay address. A missing or inactive
// mapping, or a mapping whose record has since disappeared, resolves to nil
// without an error.
func (r *Registry) Resolve(ctx context.Context, address string) (*domain.Entity, error) {
	address = mailparse.NormalizeAddress(address)
	if address == "" {
		return nil, nil
	}

	a, err := r.store.AddressByName(ctx, address)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !a.Active {
		return nil, nil
	}

	var p *domain.Person
	switch a.EntityType {
	case domain.EntityUser:
		p, err = r.dir.User(ctx, a.EntityID)
	case domain.EntityContact:
		p, err = r.dir.Contact(ctx, a.EntityID)
	default:
		return nil, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		log.WithFields(log.Fields{"address": address, "entity_id": a.EntityID}).
			Warn("relay: orphaned relay address")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &domain.Entity{
		Type:         a.EntityType,
		ID:           a.EntityID,
		Name:         p.Name,
		Email:        p.Email,
		Company:      p.Company,
		RelayAddress: a.Address,
	}, nil
}

// Deactivate retires an address. It stops resolving immediately and the
// entity gets a fresh address on its next Generate.
func (r *Registry) Deactivate(ctx context.Context, address string) error {
	address = mailparse.NormalizeAddress(address)
	if err := r.store.DeactivateAddress(ctx, address); err != nil {
		return err
	}
	log.WithFields(log.Fields{"address": address}).Info("relay: address deactivated")
	return nil
}
