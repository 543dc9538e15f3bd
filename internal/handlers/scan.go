package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/mhm-assoc/memberpass/internal/credential"
	"github.com/mhm-assoc/memberpass/internal/middleware"
	"github.com/mhm-assoc/memberpass/internal/models"
	"github.com/mhm-assoc/memberpass/internal/verification"
)

// VerifyRequest is the payload from a scanning client.
type VerifyRequest struct {
	Payload   string          `json:"payload"`
	TrackScan bool            `json:"trackScan"`
	ScannedBy string          `json:"scannedBy,omitempty"`
	Location  string          `json:"location,omitempty"`
	Device    json.RawMessage `json:"device,omitempty"`
}

// verify classifies a scanned card, records the attempt in the scan
// ledger and pushes the outcome to the live feed. The response is
// always 200 with a classified result; only a malformed request body
// is a client error.
func (r *Router) verify(w http.ResponseWriter, req *http.Request) {
	var body VerifyRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payload := strings.TrimSpace(body.Payload)
	if payload == "" {
		respondError(w, http.StatusBadRequest, "Empty payload")
		return
	}

	result := r.engine.Verify(payload, credential.CurrentValidity(), verification.Options{
		TrackScan: body.TrackScan,
	})

	scannedBy := body.ScannedBy
	if scannedBy == "" {
		scannedBy = middleware.CallerName(req.Context())
	}

	entry := &models.ScanLog{
		MemberNumber:       result.MemberNumber,
		Outcome:            string(result.Outcome),
		Message:            result.Message,
		NotificationStatus: result.NotificationStatus,
		RawPayload:         payload,
		ScannedBy:          scannedBy,
		Location:           body.Location,
	}
	entry.MemberRef = result.MemberRef
	if len(body.Device) > 0 {
		entry.DeviceInfo = datatypes.JSON(body.Device)
	}

	// Ledger append and feed broadcast are best-effort; the scanning
	// client gets its answer regardless.
	r.ledger.Record(entry)
	r.hub.BroadcastScan(map[string]interface{}{
		"type":      "SCAN",
		"outcome":   result.Outcome,
		"member":    result.MemberNumber,
		"name":      result.Name,
		"message":   result.Message,
		"location":  body.Location,
		"scannedBy": scannedBy,
		"at":        time.Now().UTC(),
	})

	respondJSON(w, http.StatusOK, result)
}

// listScans queries the scan ledger, newest first.
func (r *Router) listScans(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	filter := verification.QueryFilter{
		Outcome:      q.Get("outcome"),
		MemberNumber: q.Get("member"),
		ScannedBy:    q.Get("scannedBy"),
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Until = t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	entries, err := r.ledger.Query(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to query scan ledger")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// scanStats aggregates ledger outcomes for the dashboard.
func (r *Router) scanStats(w http.ResponseWriter, req *http.Request) {
	var since time.Time
	if v := req.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		}
	}

	counts, err := r.ledger.OutcomeCounts(since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to aggregate scan ledger")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"outcomes": counts,
	})
}
