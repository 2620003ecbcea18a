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

func TestGetOrCreateConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := f.svc.Conversations.GetOrCreate(ctx, testutil.UserID, testutil.ContactID, strPtr(testutil.JobID), "Backend role")
			errs[i] = err
			if err == nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	list, err := f.svc.Conversations.List(ctx, domain.EntityUser, testutil.UserID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, "u-usr_1@relay.test", list[0].UserRelayAddress)
	assert.Equal(t, "c-ct_1@relay.test", list[0].ContactRelayAddress)
}

func TestGetOrCreateJobScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	withJob, err := f.svc.Conversations.GetOrCreate(ctx, testutil.UserID, testutil.ContactID, strPtr(testutil.JobID), "Role")
	require.NoError(t, err)
	noJob, err := f.svc.Conversations.GetOrCreate(ctx, testutil.UserID, testutil.ContactID, nil, "Hello")
	require.NoError(t, err)
	assert.NotEqual(t, withJob.ID, noJob.ID)

	// an empty job id is the same identity as no job
	again, err := f.svc.Conversations.GetOrCreate(ctx, testutil.UserID, testutil.ContactID, strPtr(""), "Hello")
	require.NoError(t, err)
	assert.Equal(t, noJob.ID, again.ID)

	require.NoError(t, f.svc.Conversations.Touch(ctx, withJob.ID))
	latest, err := f.svc.Conversations.LatestForPair(ctx, testutil.UserID, testutil.ContactID)
	require.NoError(t, err)
	assert.Equal(t, withJob.ID, latest.ID)
}

func TestBlockedConversationIsNotReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.Conversations.GetOrCreate(ctx, testutil.UserID, testutil.ContactID, nil, "Hi")
	require.NoError(t, err)
	require.NoError(t, f.svc.Conversations.Block(ctx, conv.ID))

	_, err = f.svc.Conversations.LatestForPair(ctx, testutil.UserID, testutil.ContactID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	fresh, err := f.svc.Conversations.GetOrCreate(ctx, testutil.UserID, testutil.ContactID, nil, "Hi again")
	require.NoError(t, err)
	assert.NotEqual(t, conv.ID, fresh.ID)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.Conversations.GetOrCreate(ctx, testutil.UserID, testutil.ContactID, nil, "Hi")
	require.NoError(t, err)

	_, err = f.svc.Conversations.Authorize(ctx, conv.ID, domain.EntityUser, testutil.UserID)
	assert.NoError(t, err)
	_, err = f.svc.Conversations.Authorize(ctx, conv.ID, domain.EntityContact, testutil.ContactID)
	assert.NoError(t, err)
	_, err = f.svc.Conversations.Authorize(ctx, conv.ID, domain.EntityUser, testutil.UserID2)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Conversations.Authorize(ctx, "cv_missing", domain.EntityUser, testutil.UserID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListEmpty(t *testing.T) {
	f := newFixture(t)
	list, err := f.svc.Conversations.List(context.Background(), domain.EntityUser, testutil.UserID2, 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
