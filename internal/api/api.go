package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/concordhq/concord/internal/auth"
	"github.com/concordhq/concord/internal/config"
	"github.com/concordhq/concord/internal/realtime"
	"github.com/concordhq/concord/internal/store"
)

// API bundles the handler dependencies.
type API struct {
	store   *store.Store
	tokens  *auth.Manager
	hasher  *auth.Hasher
	hub     *realtime.Hub
	origins *originPolicy
	limits  config.LimitsConfig

	// decoyHash is compared against when login hits an unknown email, so that
	// path costs the same as a real password check.
	decoyHash string
}

// New wires the HTTP layer to its collaborators.
func New(st *store.Store, tokens *auth.Manager, hasher *auth.Hasher, hub *realtime.Hub, cfg *config.Config) *API {
	// Hashing a fixed input only fails on an invalid cost, which NewHasher
	// already clamps away.
	decoyHash, _ := hasher.Hash("concord-login-decoy")
	return &API{
		store:     st,
		tokens:    tokens,
		hasher:    hasher,
		hub:       hub,
		origins:   newOriginPolicy(cfg.Security.AllowedOrigins),
		limits:    cfg.Limits,
		decoyHash: decoyHash,
	}
}

// Router assembles all routes with their middleware.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.LimitByIP(a.limits.HTTPRateRequests, a.limits.HTTPRateWindow))

	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.Post("/login", a.handleLogin)
		})

		// Everything below requires a session.
		r.Group(func(r chi.Router) {
			r.Use(a.tokens.Middleware)

			r.Route("/servers", func(r chi.Router) {
				r.Get("/", a.handleListServers)
				r.Post("/", a.handleCreateServer)
			})

			r.Get("/members", a.handleListMembers)
			r.Patch("/members/role", a.handleChangeRole)

			r.Route("/channels", func(r chi.Router) {
				r.Get("/", a.handleListChannels)
				r.Post("/", a.handleCreateChannel)
				r.Delete("/{channelID}", a.handleDeleteChannel)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", a.handleListMessages)
				r.Post("/", a.handleCreateMessage)
				r.Patch("/{messageID}", a.handleEditMessage)
				r.Delete("/{messageID}", a.handleDeleteMessage)
			})

			r.Route("/dm", func(r chi.Router) {
				r.Route("/conversations", func(r chi.Router) {
					r.Get("/", a.handleListConversations)
					r.Post("/", a.handleOpenConversation)
				})
				r.Route("/messages", func(r chi.Router) {
					r.Get("/", a.handleListDMMessages)
					r.Post("/", a.handleCreateDMMessage)
					r.Patch("/{messageID}", a.handleEditDMMessage)
					r.Delete("/{messageID}", a.handleDeleteDMMessage)
				})
			})

			r.Route("/invites", func(r chi.Router) {
				r.Get("/", a.handleListInvites)
				r.Post("/", a.handleCreateInvite)
				r.Post("/join", a.handleJoinInvite)
			})
		})
	})

	// The websocket handshake authenticates via the same middleware; browsers
	// pass the token as a query parameter.
	r.With(a.tokens.Middleware).Get("/ws", a.handleWebSocket)

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
