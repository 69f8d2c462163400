package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/nonna/internal/auth"
	"github.com/dukerupert/nonna/internal/blob"
	"github.com/dukerupert/nonna/internal/genealogy"
	"github.com/dukerupert/nonna/internal/handler"
	"github.com/dukerupert/nonna/internal/metrics"
	"github.com/dukerupert/nonna/internal/middleware"
	"github.com/dukerupert/nonna/internal/respond"
	"github.com/dukerupert/nonna/internal/store"
	ws "github.com/dukerupert/nonna/internal/websocket"
)

// Options tunes the HTTP surface.
type Options struct {
	LoginLimit     int
	LoginWindow    time.Duration
	MaxUploadBytes int64
	// MediaDir is served under /media/ when set.
	MediaDir string
	// Notifier sends membership and share notices. Nil disables them.
	Notifier handler.Notifier
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	provider      *auth.Provider
	vaultStore    *store.VaultStore
	refreshTokens *store.RefreshTokenStore
	accountH      *handler.AccountHandler
	vaultH        *handler.VaultHandler
	genealogyH    *handler.GenealogyHandler
	memoryH       *handler.MemoryHandler
	uploadH       *handler.UploadHandler
	conversationH *handler.ConversationHandler
	rateLimiter   *middleware.RateLimiter
	opts          Options
	logger        *slog.Logger
}

func New(db *sql.DB, issuer *auth.Issuer, blobs blob.Store, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	refreshStore := store.NewRefreshTokenStore(db)
	vaultStore := store.NewVaultStore(db)
	personStore := store.NewPersonStore(db)
	relationStore := store.NewRelationStore(db)
	linkStore := store.NewPersonMemoryStore(db)
	memoryStore := store.NewMemoryStore(db)
	phraseStore := store.NewPhraseStore(db)
	sessionStore := store.NewConversationStore(db)

	provider := auth.NewProvider(userStore, refreshStore, issuer, logger.With("component", "auth"))
	assembler := genealogy.NewAssembler(vaultStore, personStore, relationStore)

	if opts.LoginLimit <= 0 {
		opts.LoginLimit = 10
	}
	if opts.LoginWindow <= 0 {
		opts.LoginWindow = time.Minute
	}

	return &Server{
		db:            db,
		hub:           hub,
		provider:      provider,
		vaultStore:    vaultStore,
		refreshTokens: refreshStore,
		accountH:      handler.NewAccountHandler(provider, userStore, logger.With("component", "account")),
		vaultH:        handler.NewVaultHandler(vaultStore, userStore, opts.Notifier, hub, logger.With("component", "vault")),
		genealogyH:    handler.NewGenealogyHandler(personStore, relationStore, linkStore, assembler, hub, logger.With("component", "genealogy")),
		memoryH:       handler.NewMemoryHandler(memoryStore, userStore, opts.Notifier, hub, logger.With("component", "memory")),
		uploadH:       handler.NewUploadHandler(blobs, opts.MaxUploadBytes, logger.With("component", "upload")),
		conversationH: handler.NewConversationHandler(phraseStore, sessionStore, hub, logger.With("component", "conversation")),
		rateLimiter:   middleware.NewRateLimiter(),
		opts:          opts,
		logger:        logger,
	}
}

// RateLimiter returns the login rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// RefreshTokens returns the refresh token store for cleanup tasks.
func (s *Server) RefreshTokens() *store.RefreshTokenStore {
	return s.refreshTokens
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Router registers every route on one mux so the metrics middleware sees
// the matched pattern. Protected handlers are wrapped one by one.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/auth/register", s.rateLimited(s.accountH.Register))
	mux.HandleFunc("POST /api/auth/login", s.rateLimited(s.accountH.Login))
	mux.HandleFunc("POST /api/auth/refresh", s.accountH.Refresh)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.provider, s.vaultStore, s.logger.With("component", "websocket")))
	if s.opts.MediaDir != "" {
		mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(s.opts.MediaDir))))
	}

	s.registerProtectedRoutes(mux)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respond.WriteError(w, http.StatusNotFound, "no such route")
	})

	var h http.Handler = mux
	h = metrics.Instrument(h)
	h = middleware.Recovery(s.logger.With("component", "recovery"))(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		respond.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, s.opts.LoginLimit, s.opts.LoginWindow)
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	requireAuth := middleware.RequireAuth(s.provider)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(h))
	}

	// Accounts
	handle("POST /api/auth/logout", s.accountH.Logout)
	handle("GET /api/auth/profile", s.accountH.Profile)
	handle("PUT /api/auth/profile", s.accountH.UpdateProfile)
	handle("PATCH /api/auth/profile", s.accountH.UpdateProfile)

	// Vaults
	handle("GET /api/vaults", s.vaultH.List)
	handle("POST /api/vaults", s.vaultH.Create)
	handle("POST /api/vaults/join", s.vaultH.Join)
	handle("GET /api/vaults/{id}", s.vaultH.Get)
	handle("PUT /api/vaults/{id}", s.vaultH.Update)
	handle("PATCH /api/vaults/{id}", s.vaultH.Update)
	handle("DELETE /api/vaults/{id}", s.vaultH.Delete)
	handle("POST /api/vaults/{id}/leave", s.vaultH.Leave)
	handle("GET /api/vaults/{id}/members", s.vaultH.ListMembers)
	handle("POST /api/vaults/{id}/members", s.vaultH.AddMember)
	handle("GET /api/vaults/{id}/members/{member_id}", s.vaultH.GetMember)
	handle("PUT /api/vaults/{id}/members/{member_id}", s.vaultH.UpdateMember)
	handle("PATCH /api/vaults/{id}/members/{member_id}", s.vaultH.UpdateMember)
	handle("DELETE /api/vaults/{id}/members/{member_id}", s.vaultH.RemoveMember)

	// Genealogy
	g := s.genealogyH
	handle("GET /api/genealogy/persons", g.ListPersons)
	handle("POST /api/genealogy/persons", g.CreatePerson)
	handle("GET /api/genealogy/persons/{id}", g.GetPerson)
	handle("PUT /api/genealogy/persons/{id}", g.UpdatePerson)
	handle("PATCH /api/genealogy/persons/{id}", g.UpdatePerson)
	handle("DELETE /api/genealogy/persons/{id}", g.DeletePerson)
	handle("GET /api/genealogy/persons/{id}/family-tree", g.FamilyTree)
	handle("GET /api/genealogy/persons/{id}/memories", g.ListPersonMemories)
	handle("POST /api/genealogy/persons/{id}/memories", g.CreatePersonMemory)
	handle("GET /api/genealogy/persons/{id}/memories/{link_id}", g.GetPersonMemory)
	handle("PUT /api/genealogy/persons/{id}/memories/{link_id}", g.UpdatePersonMemory)
	handle("PATCH /api/genealogy/persons/{id}/memories/{link_id}", g.UpdatePersonMemory)
	handle("DELETE /api/genealogy/persons/{id}/memories/{link_id}", g.DeletePersonMemory)
	handle("GET /api/genealogy/relations", g.ListRelations)
	handle("POST /api/genealogy/relations", g.CreateRelation)
	handle("GET /api/genealogy/relations/{id}", g.GetRelation)
	handle("PUT /api/genealogy/relations/{id}", g.UpdateRelation)
	handle("PATCH /api/genealogy/relations/{id}", g.UpdateRelation)
	handle("DELETE /api/genealogy/relations/{id}", g.DeleteRelation)
	handle("GET /api/genealogy/vaults/{id}/graph", g.Graph)
	handle("GET /api/genealogy/vaults/{id}/stats", g.Stats)

	// Memories
	m := s.memoryH
	handle("GET /api/memories", m.List)
	handle("POST /api/memories", m.Create)
	handle("GET /api/memories/timeline", m.Timeline)
	handle("GET /api/memories/stats", m.Stats)
	handle("GET /api/memory-shares", m.ListShares)
	handle("POST /api/memory-shares", m.CreateShare)
	handle("GET /api/memory-shares/{id}", m.GetShare)
	handle("DELETE /api/memory-shares/{id}", m.DeleteShare)
	handle("POST /api/memories/uploads/photo", s.uploadH.Photo)
	handle("POST /api/memories/uploads/audio", s.uploadH.Audio)
	handle("GET /api/memories/{id}", m.Get)
	handle("PUT /api/memories/{id}", m.Update)
	handle("PATCH /api/memories/{id}", m.Update)
	handle("DELETE /api/memories/{id}", m.Delete)
	handle("POST /api/memories/{id}/like", m.Like)
	handle("DELETE /api/memories/{id}/like", m.Unlike)
	handle("GET /api/memories/{id}/comments", m.ListComments)
	handle("POST /api/memories/{id}/comments", m.CreateComment)
	handle("GET /api/memories/{id}/comments/{comment_id}", m.GetComment)
	handle("PUT /api/memories/{id}/comments/{comment_id}", m.UpdateComment)
	handle("PATCH /api/memories/{id}/comments/{comment_id}", m.UpdateComment)
	handle("DELETE /api/memories/{id}/comments/{comment_id}", m.DeleteComment)

	// Conversation
	c := s.conversationH
	handle("GET /api/conversation/phrases", c.ListPhrases)
	handle("POST /api/conversation/phrases", c.CreatePhrase)
	handle("GET /api/conversation/phrases/{id}", c.GetPhrase)
	handle("PUT /api/conversation/phrases/{id}", c.UpdatePhrase)
	handle("PATCH /api/conversation/phrases/{id}", c.UpdatePhrase)
	handle("DELETE /api/conversation/phrases/{id}", c.DeletePhrase)
	handle("POST /api/conversation/phrases/{id}/play", c.Play)
	handle("POST /api/conversation/phrases/{id}/favorite", c.ToggleFavorite)
	handle("GET /api/conversation/phrases/{id}/playbacks", c.ListPhrasePlaybacks)
	handle("POST /api/conversation/phrases/{id}/playbacks", c.Play)
	handle("GET /api/conversation/sessions", c.ListSessions)
	handle("POST /api/conversation/sessions", c.CreateSession)
	handle("GET /api/conversation/sessions/{id}", c.GetSession)
	handle("PUT /api/conversation/sessions/{id}", c.UpdateSession)
	handle("PATCH /api/conversation/sessions/{id}", c.UpdateSession)
	handle("DELETE /api/conversation/sessions/{id}", c.DeleteSession)
	handle("GET /api/conversation/sessions/{id}/playbacks", c.ListSessionPlaybacks)
	handle("POST /api/conversation/sessions/{id}/playbacks", c.RecordSessionPlayback)
	handle("GET /api/conversation/vaults/{id}/stats", c.Stats)
	handle("GET /api/conversation/vaults/{id}/random", c.Random)
}
