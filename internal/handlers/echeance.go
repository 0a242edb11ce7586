package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/go-immo/gate"
	"github.com/diewo77/go-immo/httpx"
	"github.com/diewo77/go-immo/i18n"
	"github.com/diewo77/go-immo/internal/echeance"
	"github.com/diewo77/go-immo/internal/models"
	"github.com/diewo77/go-immo/internal/receipt"
	"github.com/diewo77/go-immo/internal/reminder"
	"github.com/diewo77/go-immo/internal/services"
	"github.com/diewo77/go-immo/internal/store"
	"github.com/diewo77/go-immo/internal/timeutil"
	"github.com/diewo77/go-immo/validation"
)

// EcheanceOptions holds the schedule thresholds and receipt defaults.
type EcheanceOptions struct {
	Views echeance.Views
	// Agency is printed when the owner has no agency name of their own.
	Agency string
}

// EcheanceStore is what the installment pages read.
type EcheanceStore interface {
	store.InstallmentReader
	store.TemplateStore
	store.UserReader
}

// EcheanceHandler serves the installment views and their actions.
type EcheanceHandler struct {
	store    EcheanceStore
	recorder *services.PaymentRecorder
	gate     Authorizer
	opts     EcheanceOptions
	now      func() time.Time
}

func NewEcheanceHandler(st EcheanceStore, recorder *services.PaymentRecorder, authz Authorizer, opts EcheanceOptions) *EcheanceHandler {
	if opts.Views.Classifier.SoonDays <= 0 {
		opts.Views.Classifier = echeance.DefaultViews.Classifier
	}
	if opts.Views.UpcomingDays <= 0 {
		opts.Views.UpcomingDays = echeance.DefaultViews.UpcomingDays
	}
	if opts.Views.CriticalDays <= 0 {
		opts.Views.CriticalDays = echeance.DefaultViews.CriticalDays
	}
	return &EcheanceHandler{store: st, recorder: recorder, gate: authz, opts: opts, now: timeutil.Now}
}

// Row is the JSON shape of a listed installment.
type Row struct {
	*models.Installment
	Classification echeance.Classification `json:"classification"`
	Badge          string                  `json:"badge"`
	DueLabel       string                  `json:"due_label"`
	Error          string                  `json:"error,omitempty"`
}

func rows(entries []echeance.Entry, lang string) []Row {
	out := make([]Row, 0, len(entries))
	for _, e := range entries {
		row := Row{
			Installment:    e.Installment,
			Classification: e.Class,
			Badge:          e.BadgeIn(lang),
			DueLabel:       e.DueLabel(),
		}
		if e.Err != nil {
			row.Error = "invalid_date"
		}
		out = append(out, row)
	}
	return out
}

// installments loads the agency's installments and the clock they are
// classified against.
func (h *EcheanceHandler) installments(ctx context.Context, f store.Filter) ([]models.Installment, time.Time, error) {
	items, err := h.store.ListInstallments(ctx, f)
	if err != nil {
		return nil, time.Time{}, err
	}
	return items, h.now(), nil
}

func logInvalid(entries []echeance.Entry) {
	for _, e := range entries {
		if e.Err != nil {
			log.Printf("echeance %d: %v", e.Installment.ID, e.Err)
		}
	}
}

// List is the "all installments" view: GET /echeances?q=&month=YYYY-MM&sale_id=
func (h *EcheanceHandler) List(w http.ResponseWriter, r *http.Request) {
	_, agency, ok := currentAgency(w, r, h.store)
	if !ok {
		return
	}
	v := validation.Violations{}
	month, err := echeance.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		v.Add("month", "invalid_month")
	}
	f := store.Filter{OwnerID: agency}
	if s := strings.TrimSpace(r.URL.Query().Get("sale_id")); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			v.Add("sale_id", "out_of_range")
		}
		f.SaleID = uint(id)
	}
	if !v.Empty() {
		if httpx.WantsJSON(r) {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
			return
		}
		// browsers keep the page with the bad filter ignored
		month = echeance.Month{}
	}

	items, now, err := h.installments(r.Context(), f)
	if err != nil {
		serverError(w, r, err)
		return
	}
	q := echeance.Query{Text: r.URL.Query().Get("q"), Month: month}
	entries := h.opts.Views.All(now, items, q)
	logInvalid(entries)

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"items": rows(entries, lang(r)),
			"count": len(entries),
		})
		return
	}
	render(w, r, "echeances/index.html", map[string]any{
		"Entries":    entries,
		"Query":      q.Text,
		"Month":      month.String(),
		"SaleID":     f.SaleID,
		"Errors":     v,
		"PayError":   r.URL.Query().Get("error"),
		"PaidNotice": r.URL.Query().Get("paid") != "",
	})
}

// Upcoming lists pending installments due within the configured window.
func (h *EcheanceHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	_, agency, ok := currentAgency(w, r, h.store)
	if !ok {
		return
	}
	items, now, err := h.installments(r.Context(), store.Filter{OwnerID: agency})
	if err != nil {
		serverError(w, r, err)
		return
	}
	entries := h.opts.Views.Upcoming(now, items)

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"items":       rows(entries, lang(r)),
			"count":       len(entries),
			"window_days": h.opts.Views.UpcomingDays,
		})
		return
	}
	render(w, r, "echeances/upcoming.html", map[string]any{
		"Entries":    entries,
		"WindowDays": h.opts.Views.UpcomingDays,
		"PayError":   r.URL.Query().Get("error"),
	})
}

// Late lists overdue installments with their totals.
func (h *EcheanceHandler) Late(w http.ResponseWriter, r *http.Request) {
	_, agency, ok := currentAgency(w, r, h.store)
	if !ok {
		return
	}
	items, now, err := h.installments(r.Context(), store.Filter{OwnerID: agency})
	if err != nil {
		serverError(w, r, err)
		return
	}
	entries, stats := h.opts.Views.Late(now, items)

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"items": rows(entries, lang(r)),
			"stats": stats,
		})
		return
	}
	render(w, r, "echeances/late.html", map[string]any{
		"Entries":      entries,
		"Stats":        stats,
		"CriticalDays": h.opts.Views.CriticalDays,
		"PayError":     r.URL.Query().Get("error"),
	})
}

// load fetches installment id and checks action on it. Installments of
// another agency are reported as missing.
func (h *EcheanceHandler) load(w http.ResponseWriter, r *http.Request, agency uint, action gate.Action) (*models.Installment, bool) {
	id, ok := pathID(r)
	if !ok {
		notFound(w, r)
		return nil, false
	}
	inst, err := h.store.GetInstallment(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, r)
		return nil, false
	}
	if err != nil {
		serverError(w, r, err)
		return nil, false
	}
	if inst.GetUserID() != agency {
		notFound(w, r)
		return nil, false
	}
	if err := h.gate.Authorize(r.Context(), action, resourceEcheance, inst); err != nil {
		forbidden(w, r)
		return nil, false
	}
	return inst, true
}

// Pay records a payment: POST /echeances/{id}/pay (form or JSON).
func (h *EcheanceHandler) Pay(w http.ResponseWriter, r *http.Request) {
	uid, agency, ok := currentAgency(w, r, h.store)
	if !ok {
		return
	}
	inst, ok := h.load(w, r, agency, gate.ActionPay)
	if !ok {
		return
	}
	back := backURL(r)

	var in services.RecordPaymentInput
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req services.PaymentRequest
		if derr := httpx.DecodeJSON(r, &req); derr != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
			return
		}
		in, err = services.ParsePaymentRequest(inst.ID, req)
	} else {
		if perr := r.ParseForm(); perr != nil {
			writePaymentError(w, r, &services.ValidationError{Violations: validation.Violations{"form": "invalid"}}, back)
			return
		}
		in, err = services.ParsePaymentForm(inst.ID, r.PostForm)
	}
	if err != nil {
		writePaymentError(w, r, err, back)
		return
	}
	in.ActorID = uid

	updated, err := h.recorder.Record(r.Context(), in)
	if err != nil {
		writePaymentError(w, r, err, back)
		return
	}

	if httpx.WantsJSON(r) {
		class, _ := h.opts.Views.Classifier.ClassifyInstallment(h.now(), updated)
		httpx.JSON(w, http.StatusOK, map[string]any{
			"installment":    updated,
			"classification": class,
			"badge":          class.BadgeIn(lang(r)),
			"message":        i18n.T(lang(r), "payment_recorded"),
		})
		return
	}
	http.Redirect(w, r, withQuery(back, "paid", strconv.FormatUint(uint64(updated.ID), 10)), http.StatusSeeOther)
}

// Reminder prepares a reminder: GET /echeances/{id}/reminder?channel=email|whatsapp
// Browsers are redirected to the mailto or wa.me link.
func (h *EcheanceHandler) Reminder(w http.ResponseWriter, r *http.Request) {
	_, agency, ok := currentAgency(w, r, h.store)
	if !ok {
		return
	}
	inst, ok := h.load(w, r, agency, gate.ActionRemind)
	if !ok {
		return
	}
	ch, err := reminder.ParseChannel(r.URL.Query().Get("channel"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"channel": "out_of_range"})
		return
	}
	if inst.IsPaid() {
		httpx.JSONErrorMsg(w, http.StatusConflict, "already_paid", i18n.T(lang(r), "payment_already_done"), nil)
		return
	}
	class, err := h.opts.Views.Classifier.ClassifyInstallment(h.now(), inst)
	if err != nil {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "invalid_date", nil)
		return
	}
	cfg := h.receiptConfig(r.Context(), inst.UserID)
	contact := reminder.ContactFor(inst)
	msg := reminder.Compose(contact, reminder.DetailsFor(inst, class, h.agencyName(r.Context(), inst.UserID), cfg.Currency), lang(r))
	link, err := reminder.Link(ch, contact, msg)
	if errors.Is(err, reminder.ErrNoContact) {
		httpx.JSONErrorMsg(w, http.StatusUnprocessableEntity, "no_contact", "", map[string]any{"subject": msg.Subject, "body": msg.Body})
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"channel": ch,
			"subject": msg.Subject,
			"body":    msg.Body,
			"link":    link,
		})
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}

// Receipt streams the PDF receipt of a paid installment.
func (h *EcheanceHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	_, agency, ok := currentAgency(w, r, h.store)
	if !ok {
		return
	}
	inst, ok := h.load(w, r, agency, gate.ActionView)
	if !ok {
		return
	}
	if !inst.IsPaid() {
		httpx.JSONError(w, http.StatusConflict, "not_paid", nil)
		return
	}
	cfg := h.receiptConfig(r.Context(), inst.UserID)
	rendered := receipt.Render(cfg, receipt.VariablesFor(inst, h.agencyName(r.Context(), inst.UserID), cfg))
	pdf, err := receipt.PDF(cfg, rendered)
	if err != nil {
		serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipt.Filename(inst.ReceiptNumber, inst.ID)))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

// receiptConfig returns the owner's template, the default one when none
// was saved or the stored one cannot be read.
func (h *EcheanceHandler) receiptConfig(ctx context.Context, ownerID uint) receipt.Config {
	return loadReceiptConfig(ctx, h.store, ownerID)
}

func (h *EcheanceHandler) agencyName(ctx context.Context, ownerID uint) string {
	u, err := h.store.GetUser(ctx, ownerID)
	if err == nil && strings.TrimSpace(u.AgencyName) != "" {
		return u.AgencyName
	}
	return h.opts.Agency
}

func loadReceiptConfig(ctx context.Context, st store.TemplateStore, ownerID uint) receipt.Config {
	t, err := st.GetReceiptTemplate(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("receipt template for user %d: %v", ownerID, err)
		}
		return receipt.DefaultConfig()
	}
	cfg, err := receipt.Decode(t.Document)
	if err != nil {
		log.Printf("receipt template for user %d: %v", ownerID, err)
		return receipt.DefaultConfig()
	}
	return cfg
}

// backURL is the local page the form was posted from.
func backURL(r *http.Request) string {
	if s := r.FormValue("redirect"); strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//") {
		return s
	}
	return "/echeances"
}

func withQuery(path, key, value string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + key + "=" + value
}
