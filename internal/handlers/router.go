package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mhm-assoc/memberpass/internal/buildinfo"
	"github.com/mhm-assoc/memberpass/internal/config"
	"github.com/mhm-assoc/memberpass/internal/credential"
	"github.com/mhm-assoc/memberpass/internal/database"
	"github.com/mhm-assoc/memberpass/internal/issuance"
	"github.com/mhm-assoc/memberpass/internal/middleware"
	"github.com/mhm-assoc/memberpass/internal/storage"
	"github.com/mhm-assoc/memberpass/internal/verification"
	"github.com/mhm-assoc/memberpass/internal/websocket"
)

// Router wraps the mux router with the service graph behind the API.
type Router struct {
	*mux.Router
	db           *database.DB
	cfg          *config.Config
	encoder      *credential.Encoder
	store        *storage.CardStore
	engine       *verification.Engine
	ledger       *verification.Ledger
	issuer       *issuance.Service
	orchestrator *issuance.Orchestrator
	hub          *websocket.Hub
}

// Deps is everything the router needs wired up at startup.
type Deps struct {
	DB           *database.DB
	Config       *config.Config
	Encoder      *credential.Encoder
	Store        *storage.CardStore
	Engine       *verification.Engine
	Ledger       *verification.Ledger
	Issuer       *issuance.Service
	Orchestrator *issuance.Orchestrator
	Hub          *websocket.Hub
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps Deps) *Router {
	r := &Router{
		Router:       mux.NewRouter(),
		db:           deps.DB,
		cfg:          deps.Config,
		encoder:      deps.Encoder,
		store:        deps.Store,
		engine:       deps.Engine,
		ledger:       deps.Ledger,
		issuer:       deps.Issuer,
		orchestrator: deps.Orchestrator,
		hub:          deps.Hub,
	}

	auth := middleware.Auth(deps.Config.JWTSecret)

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	authRoutes := r.PathPrefix("/auth").Subrouter()
	authRoutes.HandleFunc("/login", r.login).Methods("POST")
	authRoutes.HandleFunc("/register", r.register).Methods("POST")
	authRoutes.HandleFunc("/refresh", r.refresh).Methods("POST")
	authRoutes.HandleFunc("/logout", r.logout).Methods("POST")

	// Public application form + verification (scanners authenticate at
	// the app level, not per scan; kiosk devices hit this directly)
	r.HandleFunc("/api/status", r.getStatus).Methods("GET")
	r.HandleFunc("/api/apply", r.apply).Methods("POST")
	r.HandleFunc("/api/verify", r.verify).Methods("POST")

	// Live scan feed for dashboards
	r.HandleFunc("/ws/scans", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWs(r.hub, w, req)
	})

	// Member management (admin)
	members := r.PathPrefix("/api/members").Subrouter()
	members.Use(auth, middleware.RequireAdmin)
	members.HandleFunc("", r.listMembers).Methods("GET")
	members.HandleFunc("/{id}", r.getMember).Methods("GET")
	members.HandleFunc("/{id}", r.updateMember).Methods("PUT")
	members.HandleFunc("/{id}/approve", r.approveMember).Methods("POST")
	members.HandleFunc("/{id}/reject", r.rejectMember).Methods("POST")
	members.HandleFunc("/{id}/suspend", r.suspendMember).Methods("POST")
	members.HandleFunc("/{id}/reactivate", r.reactivateMember).Methods("POST")
	members.HandleFunc("/{id}/deactivate", r.deactivateMember).Methods("POST")
	members.HandleFunc("/{id}/card", r.issueCard).Methods("POST")
	members.HandleFunc("/{id}/card.png", r.getCardImage).Methods("GET")

	// Bulk issuance (admin)
	cards := r.PathPrefix("/api/cards").Subrouter()
	cards.Use(auth, middleware.RequireAdmin)
	cards.HandleFunc("/bulk", r.bulkIssue).Methods("POST")
	cards.HandleFunc("/regenerate/{year}", r.regenerate).Methods("POST")
	cards.HandleFunc("/renew", r.renewYear).Methods("POST")

	// Batches (admin)
	batches := r.PathPrefix("/api/batches").Subrouter()
	batches.Use(auth, middleware.RequireAdmin)
	batches.HandleFunc("", r.listBatches).Methods("GET")
	batches.HandleFunc("/import", r.importCSV).Methods("POST")
	batches.HandleFunc("/{id}", r.getBatch).Methods("GET")
	batches.HandleFunc("/{id}/retry", r.retryBatch).Methods("POST")
	batches.HandleFunc("/{id}/cards.pdf", r.batchCardSheet).Methods("GET")

	// Scan ledger (staff)
	scans := r.PathPrefix("/api/scans").Subrouter()
	scans.Use(auth)
	scans.HandleFunc("", r.listScans).Methods("GET")
	scans.HandleFunc("/stats", r.scanStats).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// getStatus returns build and runtime information
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "running",
		"startedAt": buildinfo.StartTime,
		"commit":    buildinfo.Commit(),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
