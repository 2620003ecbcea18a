package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"relaymail/internal/auth"
	"relaymail/internal/domain"
	"relaymail/internal/httpapi"
	"relaymail/internal/relay"
)

type SendMessageRequest struct {
	ToContactID string  `json:"toContactId"`
	JobID       *string `json:"jobId,omitempty"`
	Subject     string  `json:"subject"`
	Message     string  `json:"message"`
	HTML        string  `json:"html,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrValidation)
	}
	return nil
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	if p.Role != auth.RoleUser {
		httpapi.WriteError(w, http.StatusForbidden, httpapi.CodeForbidden, "only users can start messages", false)
		return
	}
	if !h.checkRateLimit(w, r, p.ID, "send", h.cfg.RateLimitSendPerMin) {
		return
	}

	var req SendMessageRequest
	if err := decode(w, r, &req); err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}

	msg, err := h.relay.Sender.Send(r.Context(), relay.SendRequest{
		UserID:    p.ID,
		ContactID: req.ToContactID,
		JobID:     req.JobID,
		Subject:   req.Subject,
		Body:      req.Message,
		HTML:      req.HTML,
	})
	if err != nil {
		if errors.Is(err, domain.ErrProvider) && msg != nil {
			httpapi.WriteJSON(w, http.StatusBadGateway, httpapi.Envelope{
				Data:  msg,
				Error: &httpapi.Error{Code: httpapi.CodeProvider, Message: err.Error(), Retryable: true},
			})
			return
		}
		httpapi.WriteDomainError(w, err)
		return
	}
	httpapi.WriteOK(w, http.StatusCreated, msg, nil)
}

// updateStatus takes read receipts from the message's recipient. Delivery
// outcomes are set only by the signed provider events webhook.
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req UpdateStatusRequest
	if err := decode(w, r, &req); err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}
	if status != domain.StatusRead {
		httpapi.WriteDomainError(w, fmt.Errorf("%w: only %q can be set here", domain.ErrValidation, domain.StatusRead))
		return
	}

	msg, err := h.relay.Messages.MarkRead(r.Context(), chi.URLParam(r, "id"), entityType(p), p.ID)
	if err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, msg, nil)
}
