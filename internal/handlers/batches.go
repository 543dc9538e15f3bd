package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/mhm-assoc/memberpass/internal/issuance"
	"github.com/mhm-assoc/memberpass/internal/middleware"
	"github.com/mhm-assoc/memberpass/internal/models"
	"github.com/mhm-assoc/memberpass/internal/services/cardsheet"
)

// bulkIssue issues cards for all members matching a filter, tracked as
// a batch.
func (r *Router) bulkIssue(w http.ResponseWriter, req *http.Request) {
	var filter issuance.BulkFilter
	if err := json.NewDecoder(req.Body).Decode(&filter); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := fmt.Sprintf("Bulk issuance %s", time.Now().Format("2006-01-02 15:04"))
	batch, err := r.orchestrator.RunFilter(req.Context(), name, models.BatchTypeManual, middleware.CallerName(req.Context()), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// regenerate re-issues cards for all active members for a given year.
func (r *Router) regenerate(w http.ResponseWriter, req *http.Request) {
	year := mux.Vars(req)["year"]

	name := fmt.Sprintf("Regenerate %s cards", year)
	batch, err := r.orchestrator.RunRegenerate(req.Context(), name, middleware.CallerName(req.Context()), year)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// renewYear issues a period's cards for all active members, tracked
// as a yearly-renewal batch. The validity defaults to the current
// calendar year.
func (r *Router) renewYear(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Validity string `json:"validity,omitempty"`
	}
	if req.Body != nil {
		_ = json.NewDecoder(req.Body).Decode(&body)
	}

	batch, err := r.orchestrator.RunYearlyRenewal(req.Context(), middleware.CallerName(req.Context()), body.Validity)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// importCSV runs a CSV-driven batch. The file comes as multipart form
// field "file"; batch name and validity as form values.
func (r *Router) importCSV(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(16 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing CSV file field \"file\"")
		return
	}
	defer file.Close()

	name := req.FormValue("name")
	if name == "" {
		name = fmt.Sprintf("CSV import %s", header.Filename)
	}
	validity := req.FormValue("validity")

	batch, err := r.orchestrator.RunCSV(req.Context(), name, validity, middleware.CallerName(req.Context()), file)
	if err != nil {
		// The batch record (status failed) still exists for inspection.
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// listBatches returns batch records, newest first, without results.
func (r *Router) listBatches(w http.ResponseWriter, req *http.Request) {
	q := r.db.Model(&models.Batch{}).Order("created_at DESC")
	if t := req.URL.Query().Get("type"); t != "" {
		q = q.Where("type = ?", t)
	}
	if s := req.URL.Query().Get("status"); s != "" {
		q = q.Where("status = ?", s)
	}

	var batches []models.Batch
	if err := q.Limit(100).Find(&batches).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list batches")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(batches),
		"batches": batches,
	})
}

// getBatch returns one batch with its per-member results in
// processing order.
func (r *Router) getBatch(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	var batch models.Batch
	err := r.db.Preload("Results", func(db *gorm.DB) *gorm.DB {
		return db.Order("batch_results.processed_at")
	}).First(&batch, "id = ?", id).Error
	if err != nil {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// retryBatch re-runs the failed subset of a batch.
func (r *Router) retryBatch(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	batch, err := r.orchestrator.Retry(req.Context(), id)
	if err != nil {
		if errors.Is(err, issuance.ErrNothingToRetry) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// batchCardSheet renders a printable PDF of all successfully issued
// cards in a batch.
func (r *Router) batchCardSheet(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	var batch models.Batch
	if err := r.db.First(&batch, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}

	var results []models.BatchResult
	err := r.db.
		Where("batch_id = ? AND outcome = ?", batch.ID, models.BatchResultSuccess).
		Order("processed_at").
		Find(&results).Error
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load batch results")
		return
	}

	var ids []string
	for _, res := range results {
		if res.MemberRef != nil {
			ids = append(ids, *res.MemberRef)
		}
	}
	var members []models.Member
	if len(ids) > 0 {
		if err := r.db.Where("id IN ?", ids).Order("member_number").Find(&members).Error; err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load members")
			return
		}
	}

	pdf, err := cardsheet.Generate(members, r.encoder, batch.Validity, cardsheet.DefaultSheet())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "cards-"+batch.ID+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
