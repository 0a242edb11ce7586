package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/diewo77/go-immo/auth"
	"github.com/diewo77/go-immo/gate"
	"github.com/diewo77/go-immo/httpx"
	"github.com/diewo77/go-immo/i18n"
	"github.com/diewo77/go-immo/internal/services"
	"github.com/diewo77/go-immo/internal/store"
	"github.com/diewo77/go-immo/view"
)

// Authorizer is the slice of policy.AuthGate the handlers need.
type Authorizer interface {
	Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error
}

const (
	resourceEcheance        = "echeance"
	resourceReceiptTemplate = "receipt_template"
)

func pathID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func lang(r *http.Request) string {
	return i18n.LangFromContext(r.Context())
}

// AgencyResolver maps a user to the agency owner their data is stored under.
type AgencyResolver interface {
	AgencyOf(ctx context.Context, userID uint) (uint, error)
}

// currentUser returns the logged-in user or answers 401.
func currentUser(w http.ResponseWriter, r *http.Request) (uint, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return 0, false
	}
	return uid, true
}

// currentAgency returns the logged-in user and the agency they act for.
func currentAgency(w http.ResponseWriter, r *http.Request, agencies AgencyResolver) (uid, agency uint, ok bool) {
	uid, ok = currentUser(w, r)
	if !ok {
		return 0, 0, false
	}
	agency, err := agencies.AgencyOf(r.Context(), uid)
	if errors.Is(err, store.ErrNotFound) {
		// session of a deleted account
		unauthorized(w, r)
		return 0, 0, false
	}
	if err != nil {
		serverError(w, r, err)
		return 0, 0, false
	}
	return uid, agency, true
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.JSONErrorMsg(w, http.StatusForbidden, "forbidden", i18n.T(lang(r), "forbidden"), nil)
		return
	}
	http.Error(w, i18n.T(lang(r), "forbidden"), http.StatusForbidden)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	http.NotFound(w, r)
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	if httpx.WantsJSON(r) {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	if err := view.Render(w, r, name, data); err != nil {
		serverError(w, r, err)
	}
}

// paymentStatus maps PaymentRecorder errors to a status and error code.
func paymentStatus(err error) (int, string) {
	var verr *services.ValidationError
	var perr *services.PersistenceError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, services.ErrInstallmentNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrPaymentInFlight):
		return http.StatusConflict, "payment_in_flight"
	case errors.Is(err, services.ErrAlreadyPaid):
		return http.StatusConflict, "already_paid"
	case errors.Is(err, services.ErrConcurrentUpdate):
		return http.StatusConflict, "concurrent_update"
	case errors.As(err, &perr):
		return http.StatusBadGateway, "persistence_failed"
	}
	return http.StatusInternalServerError, "internal_error"
}

var paymentMessages = map[string]string{
	"payment_in_flight":  "payment_in_flight",
	"already_paid":       "payment_already_done",
	"concurrent_update":  "payment_already_done",
	"persistence_failed": "persistence_failed",
}

// writePaymentError answers JSON clients with the mapped error and sends
// browsers back to redirect with the error code in the query.
func writePaymentError(w http.ResponseWriter, r *http.Request, err error, redirect string) {
	status, code := paymentStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	if httpx.WantsJSON(r) {
		var details any
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			details = verr.Violations
		}
		msg := ""
		if key, ok := paymentMessages[code]; ok {
			msg = i18n.T(lang(r), key)
		}
		httpx.JSONErrorMsg(w, status, code, msg, details)
		return
	}
	u, perr := url.Parse(redirect)
	if perr != nil {
		u = &url.URL{Path: "/echeances"}
	}
	q := u.Query()
	q.Set("error", code)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}
