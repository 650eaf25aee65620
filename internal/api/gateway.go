package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/asintel/internal/ai"
	"github.com/asintel/internal/config"
	"github.com/asintel/pkg/models"
)

// ScanStore is the persistence surface the gateway needs.
type ScanStore interface {
	SaveScan(ctx context.Context, domain string, assets []models.Asset, records *models.DNSRecords) (models.ScanRecord, error)
	GetScan(ctx context.Context, scanID string) (models.ScanRecord, error)
}

// ReconRunner executes the discovery pipeline for a domain.
type ReconRunner interface {
	Run(ctx context.Context, domain string) ([]models.Asset, error)
	ApexRecords(ctx context.Context, domain string) *models.DNSRecords
}

// SummaryService produces LLM-backed narratives with deterministic
// degradation handled by the caller.
type SummaryService interface {
	GenerateSummary(ctx context.Context, domain string, assets []models.Asset) (ai.Summary, error)
	EnhanceSimulation(ctx context.Context, domain string, base models.AttackGraph) models.AttackGraph
}

// PostureService produces the strategic posture report.
type PostureService interface {
	Generate(ctx context.Context, domain string, assets []models.Asset) models.PostureReport
}

// GraphBuilder constructs the deterministic attack graph.
type GraphBuilder interface {
	Build(domain string, assets []models.Asset) models.AttackGraph
}

// EventPublisher emits events after persisted scans. Optional.
type EventPublisher interface {
	Send(ctx context.Context, topic string, key []byte, value []byte) error
}

// GraphExporter mirrors persisted scans into the asset graph. Optional.
type GraphExporter interface {
	ExportScan(ctx context.Context, rec models.ScanRecord) error
}

// Dependencies wires the gateway to the rest of the system. Publisher and
// Exporter may be nil; everything else is required.
type Dependencies struct {
	Store     ScanStore
	Recon     ReconRunner
	Summaries SummaryService
	Posture   PostureService
	Graphs    GraphBuilder
	Publisher EventPublisher
	Exporter  GraphExporter
}

// Gateway represents the HTTP API gateway
type Gateway struct {
	server  *http.Server
	router  *mux.Router
	deps    Dependencies
	metrics *GatewayMetrics
}

// GatewayMetrics tracks request counters across the gateway lifetime.
type GatewayMetrics struct {
	mu               sync.Mutex
	RequestsTotal    int64
	RequestsByPath   map[string]int64
	RequestsByStatus map[int]int64
	LastRequest      time.Time
}

// NewGateway creates the gateway and registers all routes.
func NewGateway(cfg config.ServerConfig, deps Dependencies) *Gateway {
	g := &Gateway{
		router: mux.NewRouter(),
		deps:   deps,
		metrics: &GatewayMetrics{
			RequestsByPath:   make(map[string]int64),
			RequestsByStatus: make(map[int]int64),
		},
	}

	g.setupRoutes(cfg)

	g.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      g.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return g
}

func (g *Gateway) setupRoutes(cfg config.ServerConfig) {
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	g.router.Use(c.Handler)
	g.router.Use(g.metricsMiddleware)

	g.router.HandleFunc("/", g.handleRoot).Methods(http.MethodGet)
	g.router.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	g.router.HandleFunc("/scan", g.handleScan).Methods(http.MethodPost)
	g.router.HandleFunc("/scan/{id}", g.handleGetScan).Methods(http.MethodGet)
	g.router.HandleFunc("/summary", g.handleSummary).Methods(http.MethodPost)
	g.router.HandleFunc("/simulate", g.handleSimulate).Methods(http.MethodPost)
	g.router.HandleFunc("/posture", g.handlePosture).Methods(http.MethodPost)
}

// Handler exposes the routed handler for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start starts the API gateway
func (g *Gateway) Start() error {
	log.Printf("Starting API gateway on %s", g.server.Addr)
	return g.server.ListenAndServe()
}

// Stop stops the API gateway
func (g *Gateway) Stop(ctx context.Context) error {
	log.Printf("Stopping API gateway")
	return g.server.Shutdown(ctx)
}

// apiError is the wire shape of every error response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSONResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	writeJSONResponse(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}

func parseRequestBody(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		g.updateMetrics(r, wrapped.statusCode)
		log.Printf("%s %s -> %d (%s)", r.Method, r.URL.Path, wrapped.statusCode, duration)
	})
}

func (g *Gateway) updateMetrics(r *http.Request, statusCode int) {
	g.metrics.mu.Lock()
	defer g.metrics.mu.Unlock()

	g.metrics.RequestsTotal++
	g.metrics.RequestsByPath[r.URL.Path]++
	g.metrics.RequestsByStatus[statusCode]++
	g.metrics.LastRequest = time.Now()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
