package relay

import (
	"context"
	"fmt"
	"strings"

	"relaymail/internal/domain"
	"relaymail/internal/log"
	"relaymail/internal/mailer"
)

// SendRequest is a user's message to a contact.
type SendRequest struct {
	UserID    string
	ContactID string
	JobID     *string
	Subject   string
	Body      string
	HTML      string
}

func (r SendRequest) validate() error {
	var missing []string
	if r.UserID == "" {
		missing = append(missing, "userId")
	}
	if r.ContactID == "" {
		missing = append(missing, "toContactId")
	}
	if strings.TrimSpace(r.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(r.Body) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Sender runs the outbound flow: entitlement check, conversation, pending
// row, dispatch, then the status the send produced.
type Sender struct {
	cfg           Config
	store         Store
	conversations *Conversations
	messages      *Messages
	dispatcher    mailer.Dispatcher
	counter       Counter
}

// Send relays a user's message to a contact. The message row is written
// before the dispatch, so a provider failure leaves a "failed" row that can
// be resubmitted. Provider errors are returned wrapped in ErrProvider along
// with the failed message.
func (s *Sender) Send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ok, err := s.store.HasUnlocked(ctx, req.UserID, req.ContactID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: contact %s is not unlocked", domain.ErrUnauthorized, req.ContactID)
	}

	user, err := s.store.User(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	contact, err := s.store.Contact(ctx, req.ContactID)
	if err != nil {
		return nil, err
	}
	var jobTitle string
	if req.JobID != nil && *req.JobID != "" {
		if jobTitle, err = s.store.JobTitle(ctx, *req.JobID); err != nil {
			return nil, err
		}
	}

	conv, err := s.conversations.GetOrCreate(ctx, user.ID, contact.ID, req.JobID, req.Subject)
	if err != nil {
		return nil, err
	}

	msg, _, err := s.messages.Store(ctx, domain.Message{
		ConversationID:   conv.ID,
		Direction:        domain.DirectionUserToContact,
		FromType:         domain.EntityUser,
		FromID:           user.ID,
		ToType:           domain.EntityContact,
		ToID:             contact.ID,
		FromRelayAddress: conv.UserRelayAddress,
		ToRelayAddress:   conv.ContactRelayAddress,
		FromRealEmail:    user.Email,
		ToRealEmail:      contact.Email,
		Subject:          req.Subject,
		Text:             req.Body,
		HTML:             req.HTML,
	})
	if err != nil {
		return nil, err
	}

	entry := log.WithFields(log.Fields{
		"message_id":      msg.ID,
		"conversation_id": conv.ID,
		"direction":       msg.Direction,
	})

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.sendTimeout())
	receipt, sendErr := s.dispatcher.Send(sendCtx, mailer.Request{
		ToRealEmail:      contact.Email,
		FromDisplayName:  user.Name,
		FromRelayAddress: conv.UserRelayAddress,
		ToRelayAddress:   conv.ContactRelayAddress,
		Subject:          req.Subject,
		Body:             req.Body,
		HTML:             req.HTML,
		JobTitle:         jobTitle,
		CompanyName:      contact.Company,
	})
	cancel()

	if sendErr != nil {
		entry.WithError(sendErr).Warn("relay: outbound send failed")
		s.counter.IncrCounter(ctx, CountFailed)
		failed, err := s.messages.UpdateStatus(ctx, msg.ID, domain.StatusFailed)
		if err != nil {
			return msg, err
		}
		return failed, fmt.Errorf("%w: %v", domain.ErrProvider, sendErr)
	}

	sent, err := s.messages.MarkSent(ctx, msg.ID, receipt.ProviderMessageID)
	if err != nil {
		return msg, err
	}
	if err := s.conversations.Touch(ctx, conv.ID); err != nil {
		entry.WithError(err).Warn("relay: touching conversation")
	}
	s.counter.IncrCounter(ctx, CountOutbound)
	entry.WithField("provider_message_id", receipt.ProviderMessageID).Info("relay: outbound sent")
	return sent, nil
}
