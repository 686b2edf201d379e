package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/openyield/yvm/internal/ledger"
	"github.com/openyield/yvm/internal/logger"
	"github.com/openyield/yvm/internal/state"
	"github.com/openyield/yvm/internal/strategy"
	"github.com/openyield/yvm/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer handles HTTP requests for vault data visualization
type WebServer struct {
	router   *mux.Router
	port     string
	pool     types.PoolID
	ledger   *ledger.Ledger
	strategy *strategy.Registry
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, pool types.PoolID, l *ledger.Ledger, s *strategy.Registry) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:   mux.NewRouter(),
		port:     port,
		pool:     pool,
		ledger:   l,
		strategy: s,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/vault/position/{user}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/opportunities", ws.handleGetOpportunities).Methods("GET")
	api.HandleFunc("/strategy", ws.handleGetStrategy).Methods("GET")
	api.HandleFunc("/decisions", ws.handleGetDecisions).Methods("GET")
	api.HandleFunc("/snapshots", ws.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/audit", ws.handleGetAudit).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	vaultHealthy := true
	if _, err := ws.ledger.Summary(ws.pool); err != nil {
		vaultHealthy = false
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy || !vaultHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "yvm-yield-vault-manager",
			"version": "1.0.0",
		},
		"yvm_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"vault_healthy":    vaultHealthy,
			"pool_id":          uint64(ws.pool),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetVaultSummary returns vault summary statistics
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.ledger.Summary(ws.pool)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetPosition returns a single user's position
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	user := types.Identity(vars["user"])

	position, err := ws.ledger.Position(ws.pool, user)
	if err != nil {
		webLogger.Error().Err(err).Str("user", string(user)).Msg("Failed to get position")
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, position)
}

// handleGetOpportunities returns the registered yield opportunities
func (ws *WebServer) handleGetOpportunities(w http.ResponseWriter, r *http.Request) {
	opportunities, err := ws.strategy.Opportunities(ws.pool)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get opportunities")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve opportunities")
		return
	}

	response := map[string]interface{}{
		"opportunities": opportunities,
		"count":         len(opportunities),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetStrategy returns the current strategy state
func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	stratState, err := ws.strategy.State(ws.pool)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get strategy state")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve strategy state")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, stratState)
}

// handleGetDecisions returns recent rebalance decisions
func (ws *WebServer) handleGetDecisions(w http.ResponseWriter, r *http.Request) {
	limit := ws.parseLimit(r)

	decisions, err := state.GetRecentDecisions(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent decisions")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve decisions")
		return
	}

	response := map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
		"limit":     limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetSnapshots returns recent cycle snapshots
func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := ws.parseLimit(r)

	snapshots, err := state.GetRecentSnapshots(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}

	response := map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"limit":     limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetAudit returns recent role audit entries
func (ws *WebServer) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	limit := ws.parseLimit(r)

	entries, err := state.GetRecentAuditEntries(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get audit entries")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve audit entries")
		return
	}

	response := map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"limit":   limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// parseLimit reads the limit query parameter, capped at 100.
func (ws *WebServer) parseLimit(r *http.Request) int {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
