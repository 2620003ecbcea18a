package relay_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaymail/internal/domain"
	"relaymail/internal/testutil"
)

func storePending(t *testing.T, f *fixture, external *string) *domain.Message {
	t.Helper()
	ctx := context.Background()
	conv, err := f.svc.Conversations.GetOrCreate(ctx, testutil.UserID, testutil.ContactID, nil, "Hi")
	require.NoError(t, err)
	m, stored, err := f.svc.Messages.Store(ctx, domain.Message{
		ConversationID:    conv.ID,
		Direction:         domain.DirectionContactToUser,
		FromType:          domain.EntityContact,
		FromID:            testutil.ContactID,
		ToType:            domain.EntityUser,
		ToID:              testutil.UserID,
		Subject:           "Re: Hi",
		Text:              "hello",
		ExternalMessageID: external,
	})
	require.NoError(t, err)
	require.True(t, stored)
	return m
}

func TestStoreReturnsPendingRow(t *testing.T) {
	f := newFixture(t)
	m := storePending(t, f, nil)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, domain.StatusPending, m.Status)
	assert.Nil(t, m.SentAt)

	got, err := f.svc.Messages.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestStoreSuppressesDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := storePending(t, f, strPtr("<abc@mail.test>"))

	dup, stored, err := f.svc.Messages.Store(ctx, domain.Message{
		ConversationID:    first.ConversationID,
		Direction:         domain.DirectionContactToUser,
		FromType:          domain.EntityContact,
		FromID:            testutil.ContactID,
		ToType:            domain.EntityUser,
		ToID:              testutil.UserID,
		ExternalMessageID: strPtr("<abc@mail.test>"),
	})
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, first.ID, dup.ID)

	history, err := f.svc.Messages.History(ctx, first.ConversationID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStatusOnlyMovesForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := storePending(t, f, nil)

	got, err := f.svc.Messages.MarkSent(ctx, m.ID, "<p1@relay.test>")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)

	got, err = f.svc.Messages.UpdateStatusByProviderID(ctx, "<p1@relay.test>", domain.StatusRead)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, got.Status)
	assert.NotNil(t, got.DeliveredAt)
	assert.NotNil(t, got.ReadAt)

	// same status is a no-op
	got, err = f.svc.Messages.UpdateStatus(ctx, m.ID, domain.StatusRead)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, got.Status)

	for _, back := range []domain.Status{domain.StatusSent, domain.StatusDelivered, domain.StatusPending, domain.StatusBounced} {
		got, err = f.svc.Messages.UpdateStatus(ctx, m.ID, back)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, "read -> %s", back)
		assert.Equal(t, domain.StatusRead, got.Status)
	}
}

func TestFailedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := storePending(t, f, nil)

	_, err := f.svc.Messages.UpdateStatus(ctx, m.ID, domain.StatusFailed)
	require.NoError(t, err)
	_, err = f.svc.Messages.UpdateStatus(ctx, m.ID, domain.StatusSent)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestLateBounce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := storePending(t, f, nil)

	_, err := f.svc.Messages.UpdateStatus(ctx, m.ID, domain.StatusDelivered)
	require.NoError(t, err)
	got, err := f.svc.Messages.UpdateStatus(ctx, m.ID, domain.StatusBounced)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBounced, got.Status)
	assert.NotNil(t, got.DeliveredAt)
}

func TestBounceStampsSkippedTimestamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := storePending(t, f, nil)

	_, err := f.svc.Messages.UpdateStatus(ctx, m.ID, domain.StatusSent)
	require.NoError(t, err)
	got, err := f.svc.Messages.UpdateStatus(ctx, m.ID, domain.StatusBounced)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBounced, got.Status)
	assert.NotNil(t, got.SentAt)
	assert.NotNil(t, got.DeliveredAt)
	assert.Nil(t, got.ReadAt)
}

func TestMarkReadByRecipientOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := storePending(t, f, nil)

	_, err := f.svc.Messages.MarkRead(ctx, m.ID, domain.EntityContact, testutil.ContactID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Messages.MarkRead(ctx, m.ID, domain.EntityUser, testutil.UserID2)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	got, err := f.svc.Messages.MarkRead(ctx, m.ID, domain.EntityUser, testutil.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, got.Status)
	assert.NotNil(t, got.ReadAt)

	_, err = f.svc.Messages.MarkRead(ctx, "msg_missing", domain.EntityUser, testutil.UserID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateStatusUnknownMessage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Messages.UpdateStatus(context.Background(), "msg_missing", domain.StatusSent)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Messages.UpdateStatusByProviderID(context.Background(), "<nope@x>", domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
