package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"relaymail/internal/auth"
	"relaymail/internal/config"
	"relaymail/internal/domain"
	"relaymail/internal/httpapi"
	"relaymail/internal/log"
	"relaymail/internal/relay"
	"relaymail/internal/webhook"
)

// RateLimiter counts hits per key and action in a fixed window.
type RateLimiter interface {
	RateLimit(ctx context.Context, key string, action string, limit int, window time.Duration) (bool, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	cfg      *config.Config
	relay    *relay.Service
	verifier *webhook.Verifier
	auth     *auth.Service
	limiter  RateLimiter
	checks   map[string]Pinger
}

func New(cfg *config.Config, svc *relay.Service, verifier *webhook.Verifier, authSvc *auth.Service, limiter RateLimiter, checks map[string]Pinger) *Handler {
	return &Handler{
		cfg:      cfg,
		relay:    svc,
		verifier: verifier,
		auth:     authSvc,
		limiter:  limiter,
		checks:   checks,
	}
}

// Router builds the HTTP routes. mounts are attached under /api, after the
// public routes.
func (h *Handler) Router(mounts ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.Get(), NoColor: true}))
	r.Use(middleware.Recoverer)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	r.Use(c.Handler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			httpapi.WriteOK(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
		})
		r.Get("/readyz", h.readyz)

		r.Post("/webhooks/inbound", h.inboundWebhook)
		r.Post("/webhooks/events", h.eventsWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware(auth.RoleUser, auth.RoleContact))

			r.Post("/messages", h.sendMessage)
			r.Patch("/messages/{id}/status", h.updateStatus)
			r.Get("/conversations", h.listConversations)
			r.Get("/conversations/{id}/messages", h.conversationHistory)
			r.Post("/conversations/{id}/block", h.blockConversation)
		})

		for _, mount := range mounts {
			mount(r)
		}
	})

	return r
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	ready := true
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			status[name] = err.Error()
			ready = false
			continue
		}
		status[name] = "ok"
	}
	if !ready {
		httpapi.WriteJSON(w, http.StatusServiceUnavailable, httpapi.Envelope{
			Data:  status,
			Error: &httpapi.Error{Code: httpapi.CodeUnavailable, Message: "dependencies not ready", Retryable: true},
		})
		return
	}
	httpapi.WriteOK(w, http.StatusOK, status, nil)
}

// entityType maps an API principal onto a relay participant type.
func entityType(p *auth.Principal) domain.EntityType {
	if p.Role == auth.RoleContact {
		return domain.EntityContact
	}
	return domain.EntityUser
}

// page reads limit and offset, applying the listing defaults.
func page(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return domain.ClampPage(limit, offset)
}

func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	// Behind a proxy the first forwarded hop is the client.
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		ip = xrip
	} else if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		ip = strings.TrimSpace(parts[0])
	}
	if strings.Contains(ip, ":") {
		host, _, err := net.SplitHostPort(ip)
		if err == nil {
			ip = host
		}
	}
	return ip
}

// checkRateLimit fails open when the limiter itself errors.
func (h *Handler) checkRateLimit(w http.ResponseWriter, r *http.Request, key, action string, limit int) bool {
	if h.limiter == nil || limit <= 0 {
		return true
	}
	allowed, err := h.limiter.RateLimit(r.Context(), key, action, limit, time.Minute)
	if err != nil {
		log.Warnf("api: rate limiter unavailable: %v", err)
		return true
	}
	if !allowed {
		httpapi.WriteError(w, http.StatusTooManyRequests, httpapi.CodeRateLimited, "rate limit exceeded", true)
		return false
	}
	return true
}
