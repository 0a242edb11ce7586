package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/diewo77/go-immo/auth"
	"github.com/diewo77/go-immo/httpx"
	"github.com/diewo77/go-immo/internal/models"
	"github.com/diewo77/go-immo/validation"
	"gorm.io/gorm"
)

// ProfileInvalidator drops cached profiles after an assignment.
type ProfileInvalidator interface {
	InvalidateUser(userID uint)
}

// TeamHandler lets admins manage the members of their agency.
type TeamHandler struct {
	DB       *gorm.DB
	Agencies AgencyResolver
	Cache    ProfileInvalidator
}

func NewTeamHandler(db *gorm.DB, agencies AgencyResolver, cache ProfileInvalidator) *TeamHandler {
	return &TeamHandler{DB: db, Agencies: agencies, Cache: cache}
}

// inAgency restricts a users query to the agency owner and its members.
func inAgency(agency uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(id = ? OR agency_owner_id = ?)", agency, agency)
	}
}

// List displays the agency's members with their profile assignments.
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	_, agency, ok := currentAgency(w, r, h.Agencies)
	if !ok {
		return
	}
	h.list(w, r, agency, http.StatusOK, nil)
}

func (h *TeamHandler) list(w http.ResponseWriter, r *http.Request, agency uint, status int, errs validation.Violations) {
	var users []models.User
	if err := h.DB.WithContext(r.Context()).Scopes(inAgency(agency)).Preload("Profile").Order("email").Find(&users).Error; err != nil {
		serverError(w, r, err)
		return
	}
	var profiles []models.Profile
	if err := h.DB.WithContext(r.Context()).Order("name").Find(&profiles).Error; err != nil {
		serverError(w, r, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, status, map[string]any{
			"users":    users,
			"profiles": profiles,
		})
		return
	}
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
	}
	render(w, r, "admin/team.html", map[string]any{
		"Users":    users,
		"Profiles": profiles,
		"Errors":   errs,
	})
}

// memberForm is a new member submitted from the team page.
type memberForm struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Name     string `json:"name" validate:"max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// AddMember creates an account attached to the admin's agency:
// POST /admin/team with email, name, password and an optional profile_id.
func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	_, agency, ok := currentAgency(w, r, h.Agencies)
	if !ok {
		return
	}
	form := memberForm{
		Email:    strings.ToLower(strings.TrimSpace(r.FormValue("email"))),
		Name:     strings.TrimSpace(r.FormValue("name")),
		Password: r.FormValue("password"),
	}
	v, err := validation.Struct(form)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if !v.Empty() {
		h.rejectMember(w, r, agency, v)
		return
	}
	profileID, ok := h.profileParam(w, r)
	if !ok {
		return
	}

	var taken int64
	if err := h.DB.WithContext(r.Context()).Unscoped().Model(&models.User{}).Where("email = ?", form.Email).Count(&taken).Error; err != nil {
		serverError(w, r, err)
		return
	}
	if taken > 0 {
		h.rejectMember(w, r, agency, validation.Violations{"email": "already_taken"})
		return
	}
	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		serverError(w, r, err)
		return
	}
	owner := agency
	member := models.User{
		Email:         form.Email,
		Name:          form.Name,
		Password:      hash,
		ProfileID:     profileID,
		AgencyOwnerID: &owner,
	}
	if err := h.DB.WithContext(r.Context()).Create(&member).Error; err != nil {
		serverError(w, r, err)
		return
	}

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusCreated, member)
		return
	}
	http.Redirect(w, r, "/admin/team", http.StatusSeeOther)
}

func (h *TeamHandler) rejectMember(w http.ResponseWriter, r *http.Request, agency uint, v validation.Violations) {
	if httpx.WantsJSON(r) {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	h.list(w, r, agency, http.StatusBadRequest, v)
}

// AssignProfile sets or clears (profile_id empty or 0) a member's profile.
// Users outside the admin's agency are reported as missing.
func (h *TeamHandler) AssignProfile(w http.ResponseWriter, r *http.Request) {
	_, agency, ok := currentAgency(w, r, h.Agencies)
	if !ok {
		return
	}
	userID, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_user_id", nil)
		return
	}
	profileID, ok := h.profileParam(w, r)
	if !ok {
		return
	}

	res := h.DB.WithContext(r.Context()).Model(&models.User{}).
		Scopes(inAgency(agency)).Where("id = ?", userID).
		Update("profile_id", profileID)
	if res.Error != nil {
		serverError(w, r, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		notFound(w, r)
		return
	}
	if h.Cache != nil {
		h.Cache.InvalidateUser(userID)
	}

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"user_id":    userID,
			"profile_id": profileID,
		})
		return
	}
	http.Redirect(w, r, "/admin/team", http.StatusSeeOther)
}

// profileParam reads profile_id. Empty and 0 mean no profile.
func (h *TeamHandler) profileParam(w http.ResponseWriter, r *http.Request) (*uint, bool) {
	s := r.FormValue("profile_id")
	if s == "" || s == "0" {
		return nil, true
	}
	pid, err := strconv.ParseUint(s, 10, 64)
	if err != nil || pid == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_profile_id", nil)
		return nil, false
	}
	var profile models.Profile
	if err := h.DB.WithContext(r.Context()).First(&profile, pid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "profile_not_found", nil)
			return nil, false
		}
		serverError(w, r, err)
		return nil, false
	}
	id := profile.ID
	return &id, true
}
