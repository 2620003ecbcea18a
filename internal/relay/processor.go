package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"relaymail/internal/domain"
	"relaymail/internal/log"
	"relaymail/internal/mailer"
	"relaymail/internal/mailparse"
	"relaymail/internal/replytext"
	"relaymail/internal/spam"
)

// InboundResult describes what happened to one inbound email.
type InboundResult struct {
	Message   *domain.Message
	Duplicate bool
	Forwarded bool
	Spam      spam.Result
}

// Processor turns an inbound reply into a stored message and forwards it to
// the real recipient. Unresolvable input is dropped with an audit entry and
// an ErrNotFound or ErrValidation error; nothing is persisted for it.
type Processor struct {
	cfg           Config
	store         Store
	registry      *Registry
	conversations *Conversations
	messages      *Messages
	dispatcher    mailer.Dispatcher
	extractor     *replytext.Extractor
	detector      *spam.Detector
	counter       Counter
}

// Process handles one inbound email. Redelivery of a message already stored
// for the conversation returns the stored row with Duplicate set and a nil
// error. A failed forward is not an error: the message is stored and marked
// failed.
func (p *Processor) Process(ctx context.Context, in domain.InboundEmail) (*InboundResult, error) {
	entry := log.WithFields(log.Fields{
		"recipient":  in.Recipient,
		"message_id": in.MessageID,
	})

	if strings.TrimSpace(in.Recipient) == "" || strings.TrimSpace(in.Sender) == "" {
		return nil, p.drop(ctx, entry, fmt.Errorf("%w: sender and recipient are required", domain.ErrValidation))
	}

	recipient, err := p.registry.Resolve(ctx, in.Recipient)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, p.drop(ctx, entry, fmt.Errorf("%w: recipient %s", domain.ErrNotFound, in.Recipient))
	}

	senderEmail := mailparse.NormalizeAddress(in.Sender)
	var sender *domain.Person
	if recipient.Type == domain.EntityUser {
		sender, err = p.store.ContactByEmail(ctx, senderEmail)
	} else {
		sender, err = p.store.UserByEmail(ctx, senderEmail)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, p.drop(ctx, entry, fmt.Errorf("%w: sender %s", domain.ErrNotFound, senderEmail))
	}
	if err != nil {
		return nil, err
	}

	userID, contactID := recipient.ID, sender.ID
	direction := domain.DirectionContactToUser
	if recipient.Type == domain.EntityContact {
		userID, contactID = sender.ID, recipient.ID
		direction = domain.DirectionUserToContact
	}

	conv, err := p.findConversation(ctx, userID, contactID, in.InReplyTo)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, p.drop(ctx, entry, err)
	}
	if err != nil {
		return nil, err
	}
	entry = entry.WithField("conversation_id", conv.ID)

	text, match := p.extractor.Extract(in.Text)
	if match != nil {
		entry.WithField("boundary", match.Boundary).Debug("relay: quoted history stripped")
	}
	verdict := p.detector.Detect(in.Subject, text)

	fromRelay, toRelay := conv.ContactRelayAddress, conv.UserRelayAddress
	if direction == domain.DirectionUserToContact {
		fromRelay, toRelay = toRelay, fromRelay
	}

	draft := domain.Message{
		ConversationID:   conv.ID,
		Direction:        direction,
		FromType:         recipient.Type.Counterpart(),
		FromID:           sender.ID,
		ToType:           recipient.Type,
		ToID:             recipient.ID,
		FromRelayAddress: fromRelay,
		ToRelayAddress:   toRelay,
		FromRealEmail:    senderEmail,
		ToRealEmail:      recipient.Email,
		Subject:          in.Subject,
		Text:             text,
		HTML:             in.HTML,
		IsSpam:           verdict.IsSpam,
		SpamScore:        verdict.Score,
	}
	if id := mailparse.NormalizeMessageID(in.MessageID); id != "" {
		draft.ExternalMessageID = &id
	}
	if ref := mailparse.NormalizeMessageID(in.InReplyTo); ref != "" {
		draft.InReplyTo = &ref
	}

	msg, stored, err := p.messages.Store(ctx, draft)
	if err != nil {
		return nil, err
	}
	if !stored {
		p.counter.IncrCounter(ctx, CountDuplicates)
		entry.Info("relay: duplicate inbound suppressed")
		return &InboundResult{Message: msg, Duplicate: true, Spam: verdict}, nil
	}

	p.counter.IncrCounter(ctx, CountInbound)
	if verdict.IsSpam {
		p.counter.IncrCounter(ctx, CountSpam)
		entry.WithFields(log.Fields{"score": verdict.Score, "reasons": verdict.Reasons}).
			Warn("relay: inbound flagged as spam")
	}

	res := &InboundResult{Message: msg, Spam: verdict}
	res.Message, res.Forwarded = p.forward(ctx, entry, conv, msg, sender)

	if err := p.conversations.Touch(ctx, conv.ID); err != nil {
		entry.WithError(err).Warn("relay: touching conversation")
	}
	if direction == domain.DirectionContactToUser && conv.JobID != nil {
		p.markReplied(ctx, entry, conv)
	}
	return res, nil
}

// findConversation prefers the conversation of the message being replied to,
// when it belongs to the same pair and is still active, and otherwise falls
// back to the pair's most recently active conversation.
func (p *Processor) findConversation(ctx context.Context, userID, contactID, inReplyTo string) (*domain.Conversation, error) {
	if ref := mailparse.NormalizeMessageID(inReplyTo); ref != "" {
		if parent, err := p.store.MessageByAnyMessageID(ctx, ref); err == nil {
			conv, err := p.conversations.Get(ctx, parent.ConversationID)
			if err == nil && conv.Status == domain.ConversationActive &&
				conv.UserID == userID && conv.ContactID == contactID {
				return conv, nil
			}
		}
	}
	conv, err := p.conversations.LatestForPair(ctx, userID, contactID)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (p *Processor) forward(ctx context.Context, entry *logrus.Entry, conv *domain.Conversation, msg *domain.Message, sender *domain.Person) (*domain.Message, bool) {
	req := mailer.Request{
		ToRealEmail:      msg.ToRealEmail,
		FromDisplayName:  sender.Name,
		FromRelayAddress: msg.FromRelayAddress,
		ToRelayAddress:   msg.ToRelayAddress,
		Subject:          msg.Subject,
		Body:             msg.Text,
		HTML:             msg.HTML,
	}
	if msg.InReplyTo != nil {
		req.InReplyTo = *msg.InReplyTo
	}
	if msg.FromType == domain.EntityContact {
		req.CompanyName = sender.Company
	}
	if conv.JobID != nil {
		if title, err := p.store.JobTitle(ctx, *conv.JobID); err == nil {
			req.JobTitle = title
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.sendTimeout())
	receipt, err := p.dispatcher.Send(sendCtx, req)
	cancel()

	if err != nil {
		entry.WithError(err).Warn("relay: forwarding inbound failed")
		p.counter.IncrCounter(ctx, CountFailed)
		failed, uerr := p.messages.UpdateStatus(ctx, msg.ID, domain.StatusFailed)
		if uerr != nil {
			entry.WithError(uerr).Error("relay: marking forward failed")
			return msg, false
		}
		return failed, false
	}

	sent, err := p.messages.MarkSent(ctx, msg.ID, receipt.ProviderMessageID)
	if err != nil {
		entry.WithError(err).Error("relay: marking forward sent")
		return msg, true
	}
	entry.WithField("provider_message_id", receipt.ProviderMessageID).Info("relay: inbound forwarded")
	return sent, true
}

// markReplied advances the job application on a contact reply in a job
// conversation. The store only moves applications that have not been
// answered yet, so only the first reply changes anything. Failures are
// logged only; the application lives outside the relay.
func (p *Processor) markReplied(ctx context.Context, entry *logrus.Entry, conv *domain.Conversation) {
	changed, err := p.store.MarkReplied(ctx, conv.UserID, *conv.JobID)
	if err != nil {
		entry.WithError(err).Warn("relay: marking application replied")
		return
	}
	if changed {
		entry.WithField("job_id", *conv.JobID).Info("relay: application marked replied")
	}
}

func (p *Processor) drop(ctx context.Context, entry *logrus.Entry, reason error) error {
	p.counter.IncrCounter(ctx, CountDropped)
	entry.WithError(reason).Warn("relay: inbound dropped")
	return reason
}
