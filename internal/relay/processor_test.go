package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaymail/internal/domain"
	"relaymail/internal/relay"
	"relaymail/internal/testutil"
)

// openThread sends the user's first message so the pair has a conversation
// and both relay addresses.
func openThread(t *testing.T, f *fixture) *domain.Message {
	t.Helper()
	msg, err := f.svc.Sender.Send(context.Background(), relay.SendRequest{
		UserID:    testutil.UserID,
		ContactID: testutil.ContactID,
		JobID:     strPtr(testutil.JobID),
		Subject:   "Backend role",
		Body:      "I'd love to chat.",
	})
	require.NoError(t, err)
	return msg
}

func contactReply(messageID string) domain.InboundEmail {
	return domain.InboundEmail{
		Sender:    "Rita Recruiter <rita@recruit.io>",
		Recipient: "u-usr_1@relay.test",
		Subject:   "Re: Backend role",
		Text: "Sounds great, how about Tuesday?\n\n" +
			"On Mon, Jan 5, 2026 at 10:00 AM Ada <u-usr_1@relay.test> wrote:\n" +
			"> I'd love to chat.\n",
		MessageID: messageID,
		InReplyTo: "<fwd-1@relay.test>",
	}
}

func TestProcessContactReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := openThread(t, f)

	res, err := f.svc.Processor.Process(ctx, contactReply("<r1@recruit.io>"))
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.False(t, res.Duplicate)
	assert.True(t, res.Forwarded)
	assert.False(t, res.Spam.IsSpam)

	m := res.Message
	assert.Equal(t, first.ConversationID, m.ConversationID)
	assert.Equal(t, domain.DirectionContactToUser, m.Direction)
	assert.Equal(t, "Sounds great, how about Tuesday?", m.Text)
	assert.Equal(t, "c-ct_1@relay.test", m.FromRelayAddress)
	assert.Equal(t, "u-usr_1@relay.test", m.ToRelayAddress)
	assert.Equal(t, domain.StatusSent, m.Status)

	reqs := f.dispatcher.requests()
	require.Len(t, reqs, 2)
	fwd := reqs[1]
	assert.Equal(t, "ada@example.com", fwd.ToRealEmail)
	assert.Equal(t, "c-ct_1@relay.test", fwd.FromRelayAddress)
	assert.Equal(t, "Rita Recruiter", fwd.FromDisplayName)
	assert.NotContains(t, fwd.Body, "rita@recruit.io")
	assert.Equal(t, "<fwd-1@relay.test>", fwd.InReplyTo)

	status, err := f.store.ApplicationStatus(ctx, testutil.UserID, testutil.JobID)
	require.NoError(t, err)
	assert.Equal(t, "replied", status)
	assert.Equal(t, 1, f.counter.get(relay.CountInbound))
}

func TestProcessConcurrentFirstReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	openThread(t, f)

	var wg sync.WaitGroup
	for _, id := range []string{"<c1@recruit.io>", "<c2@recruit.io>"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Processor.Process(ctx, contactReply(id))
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	status, err := f.store.ApplicationStatus(ctx, testutil.UserID, testutil.JobID)
	require.NoError(t, err)
	assert.Equal(t, "replied", status)
}

func TestProcessIsIdempotentOnMessageID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := openThread(t, f)

	_, err := f.svc.Processor.Process(ctx, contactReply("<r1@recruit.io>"))
	require.NoError(t, err)
	res, err := f.svc.Processor.Process(ctx, contactReply("r1@recruit.io"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.False(t, res.Forwarded)

	history, err := f.svc.Messages.History(ctx, first.ConversationID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Len(t, f.dispatcher.requests(), 2)
	assert.Equal(t, 1, f.counter.get(relay.CountDuplicates))
}

func TestProcessUnresolvableRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := openThread(t, f)

	in := contactReply("<r2@recruit.io>")
	in.Recipient = "u-stranger@relay.test"
	res, err := f.svc.Processor.Process(ctx, in)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, 1, storedMessages(t, f))
	history, err := f.svc.Messages.History(ctx, first.ConversationID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, 1, f.counter.get(relay.CountDropped))
}

// storedMessages counts message rows across every conversation of every
// seeded user.
func storedMessages(t *testing.T, f *fixture) int {
	t.Helper()
	ctx := context.Background()
	total := 0
	for _, userID := range []string{testutil.UserID, testutil.UserID2} {
		convs, err := f.svc.Conversations.List(ctx, domain.EntityUser, userID, 0, 0)
		require.NoError(t, err)
		for _, c := range convs {
			history, err := f.svc.Messages.History(ctx, c.ID, 0, 0)
			require.NoError(t, err)
			total += len(history)
		}
	}
	return total
}

func TestProcessUnknownSender(t *testing.T) {
	f := newFixture(t)
	openThread(t, f)

	in := contactReply("<r3@recruit.io>")
	in.Sender = "someone@else.io"
	_, err := f.svc.Processor.Process(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, storedMessages(t, f))
}

func TestProcessWithoutConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Registry.Generate(ctx, domain.EntityUser, testutil.UserID)
	require.NoError(t, err)

	_, err = f.svc.Processor.Process(ctx, contactReply("<r4@recruit.io>"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, storedMessages(t, f))
}

func TestProcessMissingFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Processor.Process(context.Background(), domain.InboundEmail{Sender: "a@b.c"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProcessUserReplyToContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	openThread(t, f)

	res, err := f.svc.Processor.Process(ctx, domain.InboundEmail{
		Sender:    "ADA@example.com",
		Recipient: "c-ct_1@relay.test",
		Subject:   "Re: Backend role",
		Text:      "Following up.",
		MessageID: "<u1@example.com>",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionUserToContact, res.Message.Direction)
	assert.Equal(t, "u-usr_1@relay.test", res.Message.FromRelayAddress)

	reqs := f.dispatcher.requests()
	assert.Equal(t, "Rita@Recruit.io", reqs[len(reqs)-1].ToRealEmail)

	status, err := f.store.ApplicationStatus(ctx, testutil.UserID, testutil.JobID)
	require.NoError(t, err)
	assert.Equal(t, "applied", status)
}

func TestProcessSpamIsFlaggedAndForwarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	openThread(t, f)

	in := contactReply("<spam@recruit.io>")
	in.Subject = "WIN THE LOTTERY!!!"
	in.Text = "click here click here $$$"
	res, err := f.svc.Processor.Process(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.Message.IsSpam)
	assert.True(t, res.Forwarded)
	assert.GreaterOrEqual(t, res.Message.SpamScore, 0.5)
	assert.Equal(t, 1, f.counter.get(relay.CountSpam))
}

func TestProcessForwardFailureKeepsMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	openThread(t, f)
	f.dispatcher.err = errors.New("smtp down")

	res, err := f.svc.Processor.Process(ctx, contactReply("<r5@recruit.io>"))
	require.NoError(t, err)
	assert.False(t, res.Forwarded)
	assert.Equal(t, domain.StatusFailed, res.Message.Status)
}
