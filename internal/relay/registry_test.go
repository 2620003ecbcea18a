package relay_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaymail/internal/domain"
	"relaymail/internal/testutil"
)

func TestGenerateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Registry.Generate(ctx, domain.EntityUser, testutil.UserID)
	require.NoError(t, err)
	assert.Equal(t, "u-usr_1@relay.test", first)

	second, err := f.svc.Registry.Generate(ctx, domain.EntityUser, testutil.UserID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	contact, err := f.svc.Registry.Generate(ctx, domain.EntityContact, testutil.ContactID)
	require.NoError(t, err)
	assert.Equal(t, "c-ct_1@relay.test", contact)
}

func TestGenerateConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	addrs := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addrs[i], errs[i] = f.svc.Registry.Generate(ctx, domain.EntityContact, testutil.ContactID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, addrs[0], addrs[i])
	}
	count, err := f.store.CountAddresses(ctx, domain.EntityContact, testutil.ContactID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResolveRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	addr, err := f.svc.Registry.Generate(ctx, domain.EntityContact, testutil.ContactID)
	require.NoError(t, err)

	e, err := f.svc.Registry.Resolve(ctx, "Rita <C-CT_1@Relay.Test>")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, domain.Entity{
		Type:         domain.EntityContact,
		ID:           testutil.ContactID,
		Name:         "Rita Recruiter",
		Email:        "Rita@Recruit.io",
		Company:      "Recruit.io",
		RelayAddress: addr,
	}, *e)
}

func TestResolveMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Registry.Resolve(ctx, "nobody@relay.test")
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = f.svc.Registry.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, e)

	// mapping to a record the directory does not know
	_, err = f.svc.Registry.Generate(ctx, domain.EntityUser, "ghost")
	require.NoError(t, err)
	e, err = f.svc.Registry.Resolve(ctx, "u-ghost@relay.test")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestDeactivateIssuesFreshAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	addr, err := f.svc.Registry.Generate(ctx, domain.EntityUser, testutil.UserID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Registry.Deactivate(ctx, addr))

	e, err := f.svc.Registry.Resolve(ctx, addr)
	require.NoError(t, err)
	assert.Nil(t, e)

	next, err := f.svc.Registry.Generate(ctx, domain.EntityUser, testutil.UserID)
	require.NoError(t, err)
	assert.Equal(t, "u-usr_1-1@relay.test", next)

	e, err = f.svc.Registry.Resolve(ctx, next)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, testutil.UserID, e.ID)

	assert.ErrorIs(t, f.svc.Registry.Deactivate(ctx, addr), domain.ErrNotFound)
}

func TestGenerateValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Registry.Generate(context.Background(), domain.EntityType("admin"), "x")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.Registry.Generate(context.Background(), domain.EntityUser, " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
