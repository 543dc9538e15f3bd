package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/mhm-assoc/memberpass/internal/credential"
	"github.com/mhm-assoc/memberpass/internal/issuance"
	"github.com/mhm-assoc/memberpass/internal/models"
)

// ApplicationRequest is the public membership application form.
type ApplicationRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	MemberType  string `json:"memberType,omitempty"`
}

// apply registers a new membership application (status pending).
func (r *Router) apply(w http.ResponseWriter, req *http.Request) {
	var body ApplicationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.FirstName == "" || body.LastName == "" || body.Email == "" {
		respondError(w, http.StatusBadRequest, "firstName, lastName and email are required")
		return
	}

	member := models.Member{
		FirstName:  body.FirstName,
		LastName:   body.LastName,
		Email:      body.Email,
		Phone:      body.Phone,
		Address:    body.Address,
		MemberType: body.MemberType,
		Status:     models.MemberStatusPending,
	}
	if body.DateOfBirth != "" {
		if dob, err := time.Parse("2006-01-02", body.DateOfBirth); err == nil {
			member.DateOfBirth = &dob
		}
	}
	if member.MemberType == "" {
		member.MemberType = "regular"
	}

	if err := r.db.Create(&member).Error; err != nil {
		respondError(w, http.StatusBadRequest, "Failed to register application (email may already exist)")
		return
	}

	respondJSON(w, http.StatusCreated, member)
}

// listMembers returns members, optionally filtered by status or search.
func (r *Router) listMembers(w http.ResponseWriter, req *http.Request) {
	q := r.db.Model(&models.Member{}).Order("created_at DESC")

	if status := req.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if search := req.URL.Query().Get("search"); search != "" {
		like := "%" + search + "%"
		q = q.Where("first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ? OR member_number ILIKE ?",
			like, like, like, like)
	}

	limit := 100
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	var members []models.Member
	if err := q.Limit(limit).Find(&members).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list members")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(members),
		"members": members,
	})
}

func (r *Router) loadMember(w http.ResponseWriter, req *http.Request) (*models.Member, bool) {
	id := mux.Vars(req)["id"]
	var member models.Member
	if err := r.db.First(&member, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Member not found")
		return nil, false
	}
	return &member, true
}

// getMember returns one member record.
func (r *Router) getMember(w http.ResponseWriter, req *http.Request) {
	member, ok := r.loadMember(w, req)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, member)
}

// updateMember updates contact and type fields.
func (r *Router) updateMember(w http.ResponseWriter, req *http.Request) {
	member, ok := r.loadMember(w, req)
	if !ok {
		return
	}

	var body ApplicationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if body.FirstName != "" {
		member.FirstName = body.FirstName
	}
	if body.LastName != "" {
		member.LastName = body.LastName
	}
	if body.Email != "" {
		member.Email = body.Email
	}
	if body.Phone != "" {
		member.Phone = body.Phone
	}
	if body.Address != "" {
		member.Address = body.Address
	}
	if body.MemberType != "" {
		member.MemberType = body.MemberType
	}

	if err := r.db.Save(member).Error; err != nil {
		respondError(w, http.StatusBadRequest, "Failed to update member")
		return
	}
	respondJSON(w, http.StatusOK, member)
}

// approveMember activates a pending application, assigns the member
// number and issues the first card. Card issuance failures do not roll
// back the approval; the card can be re-issued later.
func (r *Router) approveMember(w http.ResponseWriter, req *http.Request) {
	member, ok := r.loadMember(w, req)
	if !ok {
		return
	}
	if member.Status != models.MemberStatusPending {
		respondError(w, http.StatusConflict, "Only pending applications can be approved")
		return
	}

	number, err := issuance.NextMemberNumber(r.db.DB, r.cfg.Association, credential.CurrentValidity())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to allocate member number")
		return
	}
	member.MemberNumber = &number
	member.Status = models.MemberStatusActive
	if err := r.db.Save(member).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to approve member")
		return
	}

	result, issueErr := r.issuer.IssueOne(req.Context(), member, "")
	resp := map[string]interface{}{
		"member": member,
	}
	if issueErr != nil {
		resp["cardError"] = issueErr.Error()
	} else {
		resp["card"] = result
	}
	respondJSON(w, http.StatusOK, resp)
}

// rejectMember terminally rejects a pending application.
func (r *Router) rejectMember(w http.ResponseWriter, req *http.Request) {
	member, ok := r.loadMember(w, req)
	if !ok {
		return
	}
	if member.Status != models.MemberStatusPending {
		respondError(w, http.StatusConflict, "Only pending applications can be rejected")
		return
	}
	member.Status = models.MemberStatusRejected
	if err := r.db.Save(member).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to reject member")
		return
	}
	respondJSON(w, http.StatusOK, member)
}

func (r *Router) transitionMember(w http.ResponseWriter, req *http.Request, from []string, to string) {
	member, ok := r.loadMember(w, req)
	if !ok {
		return
	}
	allowed := false
	for _, s := range from {
		if member.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		respondError(w, http.StatusConflict, "Member status does not allow this transition")
		return
	}
	member.Status = to
	if err := r.db.Save(member).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update member status")
		return
	}
	respondJSON(w, http.StatusOK, member)
}

// suspendMember moves an active member to suspended.
func (r *Router) suspendMember(w http.ResponseWriter, req *http.Request) {
	r.transitionMember(w, req, []string{models.MemberStatusActive}, models.MemberStatusSuspended)
}

// reactivateMember moves a suspended or inactive member back to active.
func (r *Router) reactivateMember(w http.ResponseWriter, req *http.Request) {
	r.transitionMember(w, req, []string{models.MemberStatusSuspended, models.MemberStatusInactive}, models.MemberStatusActive)
}

// deactivateMember moves an active member to inactive.
func (r *Router) deactivateMember(w http.ResponseWriter, req *http.Request) {
	r.transitionMember(w, req, []string{models.MemberStatusActive, models.MemberStatusSuspended}, models.MemberStatusInactive)
}

// issueCard (re-)issues a card for one member, optionally for a given
// validity period.
func (r *Router) issueCard(w http.ResponseWriter, req *http.Request) {
	member, ok := r.loadMember(w, req)
	if !ok {
		return
	}

	var body struct {
		Validity string `json:"validity,omitempty"`
	}
	if req.Body != nil {
		_ = json.NewDecoder(req.Body).Decode(&body)
	}

	result, err := r.issuer.IssueOne(req.Context(), member, body.Validity)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// getCardImage serves the stored card PNG.
func (r *Router) getCardImage(w http.ResponseWriter, req *http.Request) {
	member, ok := r.loadMember(w, req)
	if !ok {
		return
	}
	if member.Number() == "" || !member.Card.Issued() {
		respondError(w, http.StatusNotFound, "Member has no issued card")
		return
	}

	png, err := r.store.Load(member.Number())
	if err != nil {
		// Storage unavailable: render on the fly, the card is still valid.
		payload, encErr := r.encoder.Encode(member, member.Card.Validity)
		if encErr != nil {
			respondError(w, http.StatusNotFound, "Card image not available")
			return
		}
		_, png, encErr = r.encoder.Render(payload)
		if encErr != nil {
			respondError(w, http.StatusInternalServerError, "Failed to render card image")
			return
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
