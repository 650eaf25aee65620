package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/mux"

	"github.com/asintel/internal/ai"
	"github.com/asintel/internal/kafka"
	"github.com/asintel/internal/store"
	"github.com/asintel/pkg/models"
)

var domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

type scanRequest struct {
	Domain string `json:"domain"`
}

type scanResponse struct {
	ScanID      string         `json:"scan_id"`
	Domain      string         `json:"domain"`
	TotalAssets int            `json:"total_assets"`
	Assets      []models.Asset `json:"assets"`
}

type scanIDRequest struct {
	ScanID string `json:"scan_id"`
}

type simulateRequest struct {
	ScanID            string `json:"scan_id"`
	DeterministicOnly bool   `json:"deterministic_only"`
}

type simulateResponse struct {
	AttackSimulation models.AttackGraph `json:"attack_simulation"`
}

func (g *Gateway) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"name":    "Attack Surface Intelligence API",
		"version": "1.0.0",
		"status":  "running",
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (g *Gateway) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a domain field")
		return
	}

	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if !domainPattern.MatchString(domain) {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_DOMAIN", "domain is not a valid DNS name")
		return
	}

	assets, err := g.deps.Recon.Run(r.Context(), domain)
	if err != nil {
		log.Printf("api: recon failed for %s: %v", domain, err)
		writeErrorResponse(w, http.StatusInternalServerError, "RECON_FAILED", "reconnaissance pipeline failed")
		return
	}

	records := g.deps.Recon.ApexRecords(r.Context(), domain)

	rec, err := g.deps.Store.SaveScan(r.Context(), domain, assets, records)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}

	g.publishScanCompleted(r, rec)
	g.exportScan(r, rec)

	writeJSONResponse(w, http.StatusOK, scanResponse{
		ScanID:      rec.ScanID,
		Domain:      rec.Domain,
		TotalAssets: rec.TotalAssets,
		Assets:      rec.Assets,
	})
}

func (g *Gateway) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["id"]

	rec, ok := g.loadScan(w, r, scanID)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, rec)
}

func (g *Gateway) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req scanIDRequest
	if err := parseRequestBody(r, &req); err != nil || req.ScanID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a scan_id field")
		return
	}

	rec, ok := g.loadScan(w, r, req.ScanID)
	if !ok {
		return
	}

	summary, err := g.deps.Summaries.GenerateSummary(r.Context(), rec.Domain, rec.Assets)
	if err != nil {
		// Degraded, not an error: the caller still gets a useful body.
		log.Printf("api: summary generation failed for %s (%v), using deterministic fallback", rec.Domain, err)
		summary = ai.FallbackSummary(rec.Domain, rec.Assets)
	}
	writeJSONResponse(w, http.StatusOK, summary)
}

func (g *Gateway) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := parseRequestBody(r, &req); err != nil || req.ScanID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a scan_id field")
		return
	}

	rec, ok := g.loadScan(w, r, req.ScanID)
	if !ok {
		return
	}

	graph := g.deps.Graphs.Build(rec.Domain, rec.Assets)
	if !req.DeterministicOnly {
		graph = g.deps.Summaries.EnhanceSimulation(r.Context(), rec.Domain, graph)
	}
	writeJSONResponse(w, http.StatusOK, simulateResponse{AttackSimulation: graph})
}

func (g *Gateway) handlePosture(w http.ResponseWriter, r *http.Request) {
	var req scanIDRequest
	if err := parseRequestBody(r, &req); err != nil || req.ScanID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a scan_id field")
		return
	}

	rec, ok := g.loadScan(w, r, req.ScanID)
	if !ok {
		return
	}

	report := g.deps.Posture.Generate(r.Context(), rec.Domain, rec.Assets)
	writeJSONResponse(w, http.StatusOK, report)
}

// loadScan fetches a record and writes the error response on failure.
func (g *Gateway) loadScan(w http.ResponseWriter, r *http.Request, scanID string) (models.ScanRecord, bool) {
	rec, err := g.deps.Store.GetScan(r.Context(), scanID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "SCAN_NOT_FOUND", "no scan exists with the given id")
		} else {
			g.writeStoreError(w, err)
		}
		return models.ScanRecord{}, false
	}
	return rec, true
}

func (g *Gateway) writeStoreError(w http.ResponseWriter, err error) {
	var dbErr *store.DatabaseError
	if errors.As(err, &dbErr) {
		log.Printf("api: database error: %v", dbErr)
		writeErrorResponse(w, http.StatusServiceUnavailable, dbErr.Code, dbErr.Message)
		return
	}
	log.Printf("api: unexpected store error: %v", err)
	writeErrorResponse(w, http.StatusServiceUnavailable, store.CodeUnavailable, "database operation failed")
}

// publishScanCompleted emits the scan.completed event. Best-effort: a
// publish failure never fails the request.
func (g *Gateway) publishScanCompleted(r *http.Request, rec models.ScanRecord) {
	if g.deps.Publisher == nil {
		return
	}
	event := models.NewScanCompletedEvent(rec)
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("api: marshal scan.completed event failed: %v", err)
		return
	}
	if err := g.deps.Publisher.Send(r.Context(), kafka.TopicScanCompleted, []byte(rec.Domain), payload); err != nil {
		log.Printf("api: publish scan.completed failed for %s: %v", rec.ScanID, err)
	}
}

// exportScan mirrors the record into the asset graph. Best-effort.
func (g *Gateway) exportScan(r *http.Request, rec models.ScanRecord) {
	if g.deps.Exporter == nil {
		return
	}
	if err := g.deps.Exporter.ExportScan(r.Context(), rec); err != nil {
		log.Printf("api: graph export failed for %s: %v", rec.ScanID, err)
	}
}
