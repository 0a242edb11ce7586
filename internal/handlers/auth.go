package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/diewo77/go-immo/auth"
	"github.com/diewo77/go-immo/httpx"
	"github.com/diewo77/go-immo/i18n"
	"github.com/diewo77/go-immo/internal/models"
	"gorm.io/gorm"
)

type AuthHandler struct {
	db *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{db: db}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		render(w, r, "login.html", map[string]any{"Error": "", "Email": ""})
		return
	}

	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
			return
		}
	} else {
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
	}

	user, err := h.authenticate(req)
	if err != nil {
		msg := i18n.T(lang(r), "invalid_credentials")
		if httpx.WantsJSON(r) {
			httpx.JSONErrorMsg(w, http.StatusUnauthorized, "invalid_credentials", msg, nil)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		render(w, r, "login.html", map[string]any{"Error": msg, "Email": req.Email})
		return
	}

	auth.CreateSession(w, user.ID)
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
		return
	}
	http.Redirect(w, r, "/echeances/upcoming", http.StatusSeeOther)
}

func (h *AuthHandler) authenticate(req loginRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, auth.ErrInvalidCredentials
	}
	var user models.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		return nil, auth.ErrInvalidCredentials
	}
	return &user, nil
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
