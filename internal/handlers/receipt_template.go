package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/diewo77/go-immo/gate"
	"github.com/diewo77/go-immo/httpx"
	"github.com/diewo77/go-immo/i18n"
	"github.com/diewo77/go-immo/internal/models"
	"github.com/diewo77/go-immo/internal/receipt"
	"github.com/diewo77/go-immo/internal/store"
	"github.com/diewo77/go-immo/validation"
)

// ReceiptTemplateStore reads and writes the template of the user's agency.
type ReceiptTemplateStore interface {
	store.TemplateStore
	AgencyResolver
}

// ReceiptTemplateHandler lets an agency customize its payment receipts.
type ReceiptTemplateHandler struct {
	store ReceiptTemplateStore
	gate  Authorizer
}

func NewReceiptTemplateHandler(st ReceiptTemplateStore, authz Authorizer) *ReceiptTemplateHandler {
	return &ReceiptTemplateHandler{store: st, gate: authz}
}

func (h *ReceiptTemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, agency, ok := currentAgency(w, r, h.store)
	if !ok {
		return
	}
	cfg := loadReceiptConfig(r.Context(), h.store, agency)
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"config":    cfg,
			"variables": receipt.Names(),
		})
		return
	}
	render(w, r, "settings/receipt_template.html", map[string]any{
		"Config":    cfg,
		"Variables": receipt.Names(),
		"Saved":     r.URL.Query().Get("saved") != "",
	})
}

// Save validates and stores the agency's template at the current schema.
func (h *ReceiptTemplateHandler) Save(w http.ResponseWriter, r *http.Request) {
	_, agency, ok := currentAgency(w, r, h.store)
	if !ok {
		return
	}
	tpl := &models.ReceiptTemplate{UserID: agency}
	if err := h.gate.Authorize(r.Context(), gate.ActionUpdate, resourceReceiptTemplate, tpl); err != nil {
		forbidden(w, r)
		return
	}
	cfg, ok := h.decode(w, r)
	if !ok {
		return
	}
	if v, err := cfg.Validate(); err != nil {
		serverError(w, r, err)
		return
	} else if !v.Empty() {
		h.invalid(w, r, cfg, v)
		return
	}
	doc, err := cfg.Encode()
	if err != nil {
		serverError(w, r, err)
		return
	}
	tpl.SchemaVersion = receipt.CurrentSchemaVersion
	tpl.Document = doc
	if err := h.store.SaveReceiptTemplate(r.Context(), tpl); err != nil {
		serverError(w, r, err)
		return
	}
	if httpx.WantsJSON(r) {
		cfg.SchemaVersion = receipt.CurrentSchemaVersion
		httpx.JSON(w, http.StatusOK, map[string]any{
			"config":  cfg,
			"message": i18n.T(lang(r), "template_saved"),
		})
		return
	}
	http.Redirect(w, r, "/settings/receipt-template?saved=1", http.StatusSeeOther)
}

// Preview renders the submitted template with sample values, without
// saving it. JSON clients get the rendered text, others the PDF.
func (h *ReceiptTemplateHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	cfg, ok := h.decode(w, r)
	if !ok {
		return
	}
	if v, err := cfg.Validate(); err != nil {
		serverError(w, r, err)
		return
	} else if !v.Empty() {
		h.invalid(w, r, cfg, v)
		return
	}
	rendered := receipt.Render(cfg, receipt.SampleVariables(cfg))
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, rendered)
		return
	}
	pdf, err := receipt.PDF(cfg, rendered)
	if err != nil {
		serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="apercu-recu.pdf"`)
	_, _ = w.Write(pdf)
}

func (h *ReceiptTemplateHandler) invalid(w http.ResponseWriter, r *http.Request, cfg receipt.Config, v validation.Violations) {
	if httpx.WantsJSON(r) {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	render(w, r, "settings/receipt_template.html", map[string]any{
		"Config":    cfg,
		"Variables": receipt.Names(),
		"Errors":    v,
	})
}

// decode reads a Config from a JSON body or the settings form.
func (h *ReceiptTemplateHandler) decode(w http.ResponseWriter, r *http.Request) (receipt.Config, bool) {
	cfg := receipt.DefaultConfig()
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := httpx.DecodeJSON(r, &cfg); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
			return receipt.Config{}, false
		}
		up, err := cfg.Upgrade()
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "unsupported_schema", nil)
			return receipt.Config{}, false
		}
		return up, true
	}
	if err := r.ParseForm(); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_form", nil)
		return receipt.Config{}, false
	}
	f := r.PostForm
	cfg.Title = strings.TrimSpace(f.Get("title"))
	cfg.Header = f.Get("header")
	cfg.Body = strings.TrimSpace(f.Get("body"))
	cfg.Footer = f.Get("footer")
	if c := strings.TrimSpace(f.Get("currency")); c != "" {
		cfg.Currency = c
	}
	if l := strings.TrimSpace(f.Get("locale")); l != "" {
		cfg.Locale = l
	}
	cfg.ShowLogo = f.Get("show_logo") != ""
	cfg.Watermark.Enabled = f.Get("watermark_enabled") != ""
	if t := f.Get("watermark_text"); t != "" {
		cfg.Watermark.Text = strings.TrimSpace(t)
	}
	if o := strings.TrimSpace(f.Get("watermark_opacity")); o != "" {
		op, err := strconv.ParseFloat(strings.ReplaceAll(o, ",", "."), 64)
		if err != nil {
			op = -1 // reported by Validate
		}
		cfg.Watermark.Opacity = op
	}
	return cfg, true
}
