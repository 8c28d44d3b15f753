package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tabsera/settlement/internal/currency"
	"github.com/tabsera/settlement/internal/domain"
	"github.com/tabsera/settlement/internal/rates"
	"github.com/tabsera/settlement/internal/registry"
	"github.com/tabsera/settlement/internal/repository"
	"github.com/tabsera/settlement/internal/settlement"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	registry  *registry.Registry
	settRepo  *repository.SettlementRepo
	revRepo   *repository.ReviewRepo
	generator *settlement.Generator
	tracker   *settlement.Tracker
	lifecycle *settlement.Lifecycle
	importer  *rates.Importer
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	t = t.UTC()
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- CreateContract ---

func (h *Handlers) CreateContract(w http.ResponseWriter, r *http.Request) {
	var c domain.Contract
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid contract body: "+err.Error())
		return
	}

	created, err := h.registry.Create(&c)
	if err != nil {
		var inv *registry.InvariantError
		if errors.As(err, &inv) {
			writeError(w, http.StatusUnprocessableEntity, inv.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// --- GetActiveContract ---

func (h *Handlers) GetActiveContract(w http.ResponseWriter, r *http.Request) {
	centerID := chi.URLParam(r, "id")
	asOf := time.Now().UTC()
	if t := parseTime(r.URL.Query().Get("as_of")); t != nil {
		asOf = *t
	}

	c, err := h.registry.ActiveContract(centerID, asOf)
	if err != nil {
		var notFound *registry.NoActiveContractError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, notFound.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// --- GetCollection ---

func (h *Handlers) GetCollection(w http.ResponseWriter, r *http.Request) {
	centerID := chi.URLParam(r, "id")
	q := r.URL.Query()

	var start, end time.Time
	if t := parseTime(q.Get("start")); t != nil {
		start = *t
	}
	if t := parseTime(q.Get("end")); t != nil {
		end = *t
	}

	snap, err := h.tracker.Snapshot(centerID, start, end)
	if err != nil {
		var notFound *registry.NoActiveContractError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, notFound.Error())
			return
		}
		var noRate *currency.RateUnavailableError
		if errors.As(err, &noRate) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// --- ImportRates ---

func (h *Handlers) ImportRates(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	result, err := h.importer.ImportCSV(data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- GenerateBatch ---

func (h *Handlers) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AsOf string `json:"as_of"`
	}
	// An empty body means "close the most recent periods as of now".
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	asOf := time.Now().UTC()
	if t := parseTime(body.AsOf); t != nil {
		asOf = *t
	}

	result, err := h.generator.CloseCompletedPeriods(asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- ListSettlements ---

func (h *Handlers) ListSettlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.SettlementFilter{
		CenterID: q.Get("center"),
		Status:   q.Get("status"),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
		Page:     parseIntDefault(q.Get("page"), 1),
		Limit:    parseIntDefault(q.Get("limit"), 50),
	}

	settlements, total, err := h.settRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"settlements": settlements,
		"total":       total,
		"page":        filter.Page,
		"limit":       filter.Limit,
	})
}

// --- GetSettlement ---

func (h *Handlers) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s, err := h.settRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "settlement not found")
		return
	}

	audit, err := h.settRepo.ListAudit(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"settlement":  s,
		"audit_trail": audit,
	})
}

// --- ListOverdue ---

func (h *Handlers) ListOverdue(w http.ResponseWriter, r *http.Request) {
	settlements, total, err := h.settRepo.List(repository.SettlementFilter{
		Status: string(domain.SettlementOverdue),
		Page:   parseIntDefault(r.URL.Query().Get("page"), 1),
		Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"settlements": settlements,
		"total":       total,
	})
}

// --- MarkPaid ---

func (h *Handlers) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		PaymentRef string `json:"payment_ref"`
		Actor      string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.PaymentRef == "" || body.Actor == "" {
		writeError(w, http.StatusBadRequest, "payment_ref and actor are required")
		return
	}

	s, err := h.lifecycle.MarkPaid(id, body.PaymentRef, body.Actor)
	if err != nil {
		if errors.Is(err, settlement.ErrSettlementNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		var trans *settlement.TransitionError
		if errors.As(err, &trans) {
			writeError(w, http.StatusConflict, trans.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s)
}

// --- ExportSettlements ---

func (h *Handlers) ExportSettlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.SettlementFilter{
		CenterID: q.Get("center"),
		Status:   q.Get("status"),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
		Page:     1,
		Limit:    10000,
	}

	settlements, _, err := h.settRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="settlements.csv"`)
	if err := settlement.WriteCSV(w, settlements); err != nil {
		log.Printf("[api] export error: %v", err)
	}
}

// --- ListReviewQueue ---

func (h *Handlers) ListReviewQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.revRepo.ListOpen()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.settRepo.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	centerVols, err := h.settRepo.GetVolumeByCenter()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	openReviews, err := h.revRepo.ListOpen()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dashboard := map[string]any{
		"settlements": map[string]int{
			"total":   stats.Total,
			"pending": stats.Pending,
			"paid":    stats.Paid,
			"overdue": stats.Overdue,
		},
		"amounts": map[string]int64{
			"gross_total":     stats.GrossTotal,
			"collected_total": stats.CollectedTotal,
			"pending_total":   stats.PendingTotal,
		},
		"by_center":    centerVols,
		"open_reviews": len(openReviews),
	}

	writeJSON(w, http.StatusOK, dashboard)
}
