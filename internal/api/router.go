package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/maxot/showrunner/internal/auth"
	"github.com/maxot/showrunner/internal/lifecycle"
	"github.com/maxot/showrunner/internal/notify"
	"github.com/maxot/showrunner/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux       *http.ServeMux
	svc       *lifecycle.Service
	store     *storage.Store
	auth      *auth.Service
	notifier  notify.Notifier
	wsHub     *WebSocketHub
	nc        *nats.Conn
	sub       *nats.Subscription
	publicURL string
	staticDir string
}

// NewRouter creates a new HTTP router
func NewRouter(svc *lifecycle.Service, store *storage.Store, authService *auth.Service,
	notifier notify.Notifier, nc *nats.Conn, publicURL, staticDir string) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		svc:       svc,
		store:     store,
		auth:      authService,
		notifier:  notifier,
		nc:        nc,
		publicURL: publicURL,
		staticDir: staticDir,
	}
	r.wsHub = NewWebSocketHub(r.onClientClose)

	// Game control (admin console)
	r.mux.HandleFunc("POST /api/game/start", r.requireAdmin(r.handleGameStart))
	r.mux.HandleFunc("POST /api/game/pause", r.requireAdmin(r.handleGamePause))
	r.mux.HandleFunc("POST /api/game/resume", r.requireAdmin(r.handleGameResume))
	r.mux.HandleFunc("POST /api/game/skip", r.requireAdmin(r.handleGameSkip))
	r.mux.HandleFunc("POST /api/game/stop", r.requireAdmin(r.handleGameStop))
	r.mux.HandleFunc("GET /api/game/status", r.handleGameStatus)
	r.mux.HandleFunc("GET /api/game/recent", r.requireAuth(r.handleRecentGames))
	r.mux.HandleFunc("GET /api/game/qr", r.handleJoinQR)

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("POST /api/auth/logout", r.handleLogout)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)
	r.mux.HandleFunc("POST /api/auth/change-password", r.requireAuth(r.handleChangePassword))

	// User management routes (admin only)
	r.mux.HandleFunc("GET /api/users", r.requireAdmin(r.handleListUsers))
	r.mux.HandleFunc("POST /api/users", r.requireAdmin(r.handleCreateUser))
	r.mux.HandleFunc("DELETE /api/users/{username}", r.requireAdmin(r.handleDeleteUser))
	r.mux.HandleFunc("POST /api/users/{id}/reset-password", r.requireAdmin(r.handleResetUserPassword))

	// WebSocket endpoint for show clients
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	// Static files - only serve if staticDir is configured
	if staticDir != "" {
		r.mux.HandleFunc("GET /", r.handleStatic)
	}

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// Start runs the hub and subscribes to the broker so game messages reach
// the websocket clients
func (r *Router) Start() error {
	go r.wsHub.Run()

	sub, err := r.nc.Subscribe("show.>", func(m *nats.Msg) {
		r.wsHub.Deliver(m.Subject, m.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribing to broker: %w", err)
	}
	r.sub = sub
	return nil
}

// Stop detaches the router from the broker
func (r *Router) Stop() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
}

// onClientClose feeds websocket drops into the connection handler, which
// decides whether the show has to pause
func (r *Router) onClientClose(connID, cause string) {
	h, err := r.svc.Connections()
	if err != nil {
		return
	}
	h.OnDisconnect(connID, cause)
}

// handleStatic serves static files from the configured directory
// For SPA support, serves index.html for any path that doesn't match a file
func (r *Router) handleStatic(w http.ResponseWriter, req *http.Request) {
	path := filepath.Clean(req.URL.Path)
	if path == "/" {
		path = "/index.html"
	}

	fullPath := filepath.Join(r.staticDir, path)

	// Security: ensure the path is within staticDir
	absStaticDir, _ := filepath.Abs(r.staticDir)
	absPath, _ := filepath.Abs(fullPath)
	if !strings.HasPrefix(absPath, absStaticDir) {
		http.NotFound(w, req)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		// SPA fallback: serve index.html for unknown paths
		fullPath = filepath.Join(r.staticDir, "index.html")
		if _, err := os.Stat(fullPath); err != nil {
			http.NotFound(w, req)
			return
		}
	}

	http.ServeFile(w, req, fullPath)
}
