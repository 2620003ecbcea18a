package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"relaymail/internal/auth"
	"relaymail/internal/httpapi"
)

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	limit, offset := page(r)

	convs, err := h.relay.Conversations.List(r.Context(), entityType(p), p.ID, limit, offset)
	if err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, convs, &httpapi.Meta{Limit: limit, Offset: offset})
}

func (h *Handler) conversationHistory(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	conv, err := h.relay.Conversations.Authorize(r.Context(), chi.URLParam(r, "id"), entityType(p), p.ID)
	if err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}

	limit, offset := page(r)
	msgs, err := h.relay.Messages.History(r.Context(), conv.ID, limit, offset)
	if err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, msgs, &httpapi.Meta{Limit: limit, Offset: offset})
}

func (h *Handler) blockConversation(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	conv, err := h.relay.Conversations.Authorize(r.Context(), chi.URLParam(r, "id"), entityType(p), p.ID)
	if err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}
	if err := h.relay.Conversations.Block(r.Context(), conv.ID); err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, map[string]string{"id": conv.ID, "status": "blocked"}, nil)
}
