package api

import (
	"errors"
	"net/http"

	"relaymail/internal/domain"
	"relaymail/internal/httpapi"
	"relaymail/internal/log"
	"relaymail/internal/mailparse"
	"relaymail/internal/webhook"
)

// verify authenticates a provider callback before anything else is read
// from it.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) bool {
	if !h.checkRateLimit(w, r, clientIP(r), "webhook", h.cfg.RateLimitWebhookPerMin) {
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.cfg.MaxEmailBytes)+1<<20)
	if err := webhook.ParseForm(r); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, "unreadable form body", false)
		return false
	}
	err := h.verifier.Verify(
		r.FormValue(webhook.FieldTimestamp),
		r.FormValue(webhook.FieldToken),
		r.FormValue(webhook.FieldSignature))
	if err != nil {
		log.WithFields(log.Fields{"path": r.URL.Path, "ip": clientIP(r)}).WithError(err).
			Warn("api: webhook rejected")
		httpapi.WriteError(w, http.StatusUnauthorized, httpapi.CodeUnauthorized, "invalid webhook signature", false)
		return false
	}
	return true
}

// rejectPermanently answers unprocessable callbacks with 406, which the
// provider treats as final and does not retry.
func rejectPermanently(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		httpapi.WriteError(w, http.StatusNotAcceptable, httpapi.CodeNotFound, err.Error(), false)
	case errors.Is(err, domain.ErrValidation):
		httpapi.WriteError(w, http.StatusNotAcceptable, httpapi.CodeInvalidRequest, err.Error(), false)
	default:
		return false
	}
	return true
}

type inboundResponse struct {
	MessageID string  `json:"message_id"`
	Duplicate bool    `json:"duplicate"`
	Forwarded bool    `json:"forwarded"`
	IsSpam    bool    `json:"is_spam"`
	SpamScore float64 `json:"spam_score"`
}

func newInboundResponse(msg *domain.Message, duplicate bool) inboundResponse {
	return inboundResponse{
		MessageID: msg.ID,
		Duplicate: duplicate,
		Forwarded: msg.ProviderMessageID != nil,
		IsSpam:    msg.IsSpam,
		SpamScore: msg.SpamScore,
	}
}

func (h *Handler) inboundWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.verify(w, r) {
		return
	}

	token := r.FormValue(webhook.FieldToken)
	if msg := h.handledInbound(r, token); msg != nil {
		httpapi.WriteOK(w, http.StatusOK, newInboundResponse(msg, true), nil)
		return
	}

	in, err := webhook.Inbound(r, mailparse.Options{
		RelayDomain: h.cfg.RelayDomain,
		MaxBytes:    int64(h.cfg.MaxEmailBytes),
	})
	if err != nil {
		if !rejectPermanently(w, err) {
			httpapi.WriteDomainError(w, err)
		}
		return
	}

	res, err := h.relay.Processor.Process(r.Context(), *in)
	if err != nil {
		if !rejectPermanently(w, err) {
			httpapi.WriteDomainError(w, err)
		}
		return
	}

	if err := h.verifier.Record(r.Context(), token, res.Message.ID); err != nil {
		log.WithFields(log.Fields{"message_id": res.Message.ID}).WithError(err).
			Warn("api: recording webhook token")
	}

	resp := newInboundResponse(res.Message, res.Duplicate)
	resp.Forwarded = res.Forwarded
	resp.IsSpam, resp.SpamScore = res.Spam.IsSpam, res.Spam.Score
	httpapi.WriteOK(w, http.StatusOK, resp, nil)
}

// handledInbound returns the message stored by an earlier delivery of the
// same token. Lookup failures fall through to normal processing, which is
// idempotent on the provider Message-Id.
func (h *Handler) handledInbound(r *http.Request, token string) *domain.Message {
	id, seen, err := h.verifier.Handled(r.Context(), token)
	if err != nil {
		log.WithError(err).Warn("api: reading webhook token")
		return nil
	}
	if !seen {
		return nil
	}
	msg, err := h.relay.Messages.Get(r.Context(), id)
	if err != nil {
		log.WithFields(log.Fields{"message_id": id}).WithError(err).Warn("api: loading handled message")
		return nil
	}
	return msg
}

func (h *Handler) eventsWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.verify(w, r) {
		return
	}

	ev, err := webhook.DeliveryEvent(r)
	if err != nil {
		rejectPermanently(w, err)
		return
	}

	msg, err := h.relay.Messages.UpdateStatusByProviderID(r.Context(), ev.ProviderMessageID, ev.Status)
	applied := err == nil
	if errors.Is(err, domain.ErrInvalidTransition) {
		// Late or out-of-order event; the stored status already supersedes it.
		err = nil
	}
	if err != nil {
		if !rejectPermanently(w, err) {
			httpapi.WriteDomainError(w, err)
		}
		return
	}
	httpapi.WriteOK(w, http.StatusOK, map[string]interface{}{
		"message_id": msg.ID,
		"status":     msg.Status,
		"applied":    applied,
	}, nil)
}
