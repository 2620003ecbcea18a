package admin

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"relaymail/internal/auth"
	"relaymail/internal/config"
	"relaymail/internal/httpapi"
	"relaymail/internal/log"
	"relaymail/internal/redisstore"
	"relaymail/internal/relay"
)

const loginAttemptsPerMin = 10

type AdminHandler struct {
	cfg   *config.Config
	relay *relay.Service
	store *redisstore.Store
	auth  *auth.Service
}

func NewAdminHandler(cfg *config.Config, svc *relay.Service, store *redisstore.Store, authSvc *auth.Service) *AdminHandler {
	return &AdminHandler{
		cfg:   cfg,
		relay: svc,
		store: store,
		auth:  authSvc,
	}
}

// Routes mounts the admin API under /admin.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware(auth.RoleAdmin))

			r.Get("/stats", h.GetStats)
			r.Get("/config", h.GetConfig)
			r.Put("/config/imap", h.UpdateIMAPConfig)
			r.Post("/relay-addresses/{address}/deactivate", h.DeactivateAddress)
			r.Post("/conversations/{id}/block", h.BlockConversation)
		})
	})
}

// Login handler
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if ok, err := h.store.RateLimit(r.Context(), ip, "admin-login", loginAttemptsPerMin, time.Minute); err == nil && !ok {
		httpapi.WriteError(w, http.StatusTooManyRequests, httpapi.CodeRateLimited, "too many login attempts", true)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, "invalid request body", false)
		return
	}

	if err := h.auth.ValidatePassword(req.Password); err != nil {
		log.WithFields(log.Fields{"ip": ip}).Warn("admin: failed login")
		httpapi.WriteError(w, http.StatusUnauthorized, httpapi.CodeUnauthorized, "invalid password", false)
		return
	}

	token, err := h.auth.AdminToken()
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, "failed to generate token", false)
		return
	}

	httpapi.WriteOK(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresIn": int(auth.AdminTokenTTL.Seconds()),
	}, nil)
}

// GetStats returns per-day relay counters, today first.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}

	recent, err := h.store.RecentCounters(r.Context(), days)
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, "failed to read counters", true)
		return
	}

	totals := map[string]int64{}
	for _, d := range recent {
		for name, n := range d.Counters {
			totals[name] += n
		}
	}

	httpapi.WriteOK(w, http.StatusOK, map[string]interface{}{
		"days":   recent,
		"totals": totals,
	}, nil)
}

func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	imap, err := h.store.GetIMAPConfig(r.Context())
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, "failed to read imap config", true)
		return
	}

	httpapi.WriteOK(w, http.StatusOK, map[string]interface{}{
		"relayDomain":            h.cfg.RelayDomain,
		"userPrefix":             h.cfg.UserPrefix,
		"contactPrefix":          h.cfg.ContactPrefix,
		"mailerDriver":           h.cfg.MailerDriver,
		"maxEmailBytes":          h.cfg.MaxEmailBytes,
		"rateLimitSendPerMin":    h.cfg.RateLimitSendPerMin,
		"rateLimitWebhookPerMin": h.cfg.RateLimitWebhookPerMin,
		"webhookSigning":         h.cfg.WebhookSigningKey != "",
		"imapOverride":           imap,
	}, nil)
}

// UpdateIMAPConfig sets the mailbox the ingestor polls from its next cycle.
func (h *AdminHandler) UpdateIMAPConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Host string `json:"host"`
		Port int    `json:"port"`
		User string `json:"user"`
		Pass string `json:"pass"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, "invalid request body", false)
		return
	}
	req := redisstore.IMAPSettings{Host: strings.TrimSpace(body.Host), Port: body.Port, User: body.User, Pass: body.Pass}
	if req.Host == "" || req.Port <= 0 || req.Port > 65535 {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, "host and a valid port are required", false)
		return
	}

	if err := h.store.UpdateIMAPConfig(r.Context(), req); err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, "failed to save imap config", true)
		return
	}
	log.WithFields(log.Fields{"host": req.Host, "port": req.Port}).Info("admin: imap config updated")
	httpapi.WriteOK(w, http.StatusOK, req, nil)
}

func (h *AdminHandler) DeactivateAddress(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := h.relay.Registry.Deactivate(r.Context(), address); err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, map[string]string{"address": address, "status": "deactivated"}, nil)
}

func (h *AdminHandler) BlockConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.relay.Conversations.Block(r.Context(), id); err != nil {
		httpapi.WriteDomainError(w, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, map[string]string{"id": id, "status": "blocked"}, nil)
}
