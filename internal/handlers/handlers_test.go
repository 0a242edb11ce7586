package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-immo/auth"
	"github.com/diewo77/go-immo/gate"
	"github.com/diewo77/go-immo/internal/db"
	"github.com/diewo77/go-immo/internal/echeance"
	"github.com/diewo77/go-immo/internal/inflight"
	"github.com/diewo77/go-immo/internal/models"
	"github.com/diewo77/go-immo/internal/services"
	"github.com/diewo77/go-immo/internal/store"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type testAuthz struct {
	g *gate.HybridGate[uint]
}

func (a testAuthz) Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error {
	uid, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return gate.ErrUnauthorized
	}
	return a.g.Authorize(ctx, uid, action, resourceType, resource)
}

// sameAgency lets users act on resources stored under their agency owner.
type sameAgency struct{ agencies AgencyResolver }

func (p sameAgency) Can(ctx context.Context, uid uint, _ gate.Action, resource any) bool {
	o, ok := resource.(interface{ GetUserID() uint })
	if !ok {
		return false
	}
	agency, err := p.agencies.AgencyOf(ctx, uid)
	return err == nil && o.GetUserID() == agency
}

type env struct {
	db    *gorm.DB
	mux   *http.ServeMux
	owner models.User
	// member and viewer belong to the owner's agency
	member models.User
	viewer models.User
	other  models.User
	// owner's installments ordered by due date: -40, -5, 0, +4, +20, +45 days
	items []models.Installment
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conn := openTestDB(t)
	e := &env{
		db:    conn,
		owner: models.User{Email: "owner@example.com", Password: "x", AgencyName: "Agence Teranga"},
		other: models.User{Email: "other@example.com", Password: "x"},
	}
	for _, u := range []*models.User{&e.owner, &e.other} {
		if err := conn.Create(u).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	e.member = models.User{Email: "member@example.com", Password: "x", AgencyOwnerID: &e.owner.ID}
	e.viewer = models.User{Email: "viewer@example.com", Password: "x", AgencyOwnerID: &e.owner.ID}
	for _, u := range []*models.User{&e.member, &e.viewer} {
		if err := conn.Create(u).Error; err != nil {
			t.Fatalf("create member: %v", err)
		}
	}
	if err := db.SeedDemo(conn, e.owner.ID, fixedNow); err != nil {
		t.Fatalf("seed demo: %v", err)
	}

	res := gate.NewStaticResolver[uint]()
	agent := gate.NewStaticProfile(1, "agent", "echeance:*", "receipt_template:*")
	res.Set(e.owner.ID, agent)
	res.Set(e.member.ID, agent)
	res.Set(e.other.ID, agent)
	res.Set(e.viewer.ID, gate.NewStaticProfile(2, "viewer", "echeance:list", "echeance:view"))
	st := store.NewGormStore(conn)
	hg := gate.NewHybridGate[uint](res)
	hg.Register(resourceEcheance, sameAgency{st})
	hg.Register(resourceReceiptTemplate, sameAgency{st})
	authz := testAuthz{g: hg}

	rec := services.NewPaymentRecorder(st, inflight.NewMemoryGuard(time.Minute), log.New(io.Discard, "", 0))
	eh := NewEcheanceHandler(st, rec, authz, EcheanceOptions{Views: echeance.DefaultViews, Agency: "Agence"})
	eh.now = func() time.Time { return fixedNow }
	th := NewReceiptTemplateHandler(st, authz)

	e.mux = http.NewServeMux()
	e.mux.HandleFunc("GET /echeances", eh.List)
	e.mux.HandleFunc("GET /echeances/upcoming", eh.Upcoming)
	e.mux.HandleFunc("GET /echeances/late", eh.Late)
	e.mux.HandleFunc("POST /echeances/{id}/pay", eh.Pay)
	e.mux.HandleFunc("GET /echeances/{id}/reminder", eh.Reminder)
	e.mux.HandleFunc("GET /echeances/{id}/receipt", eh.Receipt)
	e.mux.HandleFunc("GET /settings/receipt-template", th.Get)
	e.mux.HandleFunc("POST /settings/receipt-template", th.Save)
	e.mux.HandleFunc("POST /settings/receipt-template/preview", th.Preview)

	items, err := st.ListInstallments(context.Background(), store.Filter{OwnerID: e.owner.ID})
	if err != nil || len(items) != 6 {
		t.Fatalf("list seeded installments: %d %v", len(items), err)
	}
	e.items = items
	return e
}

// do sends a request as uid. A string body is sent as JSON.
func (e *env) do(t *testing.T, method, target string, uid uint, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Accept", "application/json")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != 0 {
		req = req.WithContext(auth.WithUserID(req.Context(), uid))
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestListFilters(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 6},
		{"buyer without accents", "?q=aissatou", 6},
		{"phone digits", "?q=771234567", 6},
		{"no match", "?q=zzz", 0},
		{"month", "?month=2024-03", 3},
		{"other sale", "?sale_id=9999", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodGet, "/echeances"+tt.query, e.owner.ID, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
			}
			if got := int(decode(t, rr)["count"].(float64)); got != tt.want {
				t.Fatalf("count = %d, want %d", got, tt.want)
			}
		})
	}

	if rr := e.do(t, http.MethodGet, "/echeances", e.other.ID, ""); int(decode(t, rr)["count"].(float64)) != 0 {
		t.Fatal("another agency must not see the owner's installments")
	}
	for _, u := range []models.User{e.member, e.viewer} {
		if rr := e.do(t, http.MethodGet, "/echeances", u.ID, ""); int(decode(t, rr)["count"].(float64)) != 6 {
			t.Fatalf("%s should see the agency's installments", u.Email)
		}
	}
	if rr := e.do(t, http.MethodGet, "/echeances", 9999, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("deleted account: status %d", rr.Code)
	}
	rr := e.do(t, http.MethodGet, "/echeances?month=2024-13", e.owner.ID, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid month: status %d", rr.Code)
	}
}

func TestListBadges(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/echeances", e.owner.ID, "")
	items := decode(t, rr)["items"].([]any)
	want := []string{"En retard de 40j", "En retard de 5j", "Aujourd'hui", "Dans 4j", "À venir", "À venir"}
	for i, it := range items {
		if got := it.(map[string]any)["badge"]; got != want[i] {
			t.Fatalf("row %d badge = %v, want %s", i, got, want[i])
		}
	}
}

func TestUpcomingAndLate(t *testing.T) {
	e := newEnv(t)

	up := decode(t, e.do(t, http.MethodGet, "/echeances/upcoming", e.owner.ID, ""))
	if n := int(up["count"].(float64)); n != 3 {
		t.Fatalf("upcoming count = %d, want 3 (today, +4, +20)", n)
	}

	late := decode(t, e.do(t, http.MethodGet, "/echeances/late", e.owner.ID, ""))
	if n := len(late["items"].([]any)); n != 2 {
		t.Fatalf("late items = %d, want 2", n)
	}
	stats := late["stats"].(map[string]any)
	owed, err := decimal.NewFromString(fmt.Sprint(stats["total_owed"]))
	if err != nil || !owed.Equal(decimal.NewFromInt(1700000)) {
		t.Fatalf("total_owed = %v", stats["total_owed"])
	}
	if stats["total"].(float64) != 2 || stats["avg_days_late"].(float64) != 23 || stats["critical_count"].(float64) != 1 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestPayPartialAmount(t *testing.T) {
	e := newEnv(t)
	inst := e.items[1]
	target := fmt.Sprintf("/echeances/%d/pay", inst.ID)

	rr := e.do(t, http.MethodPost, target, e.owner.ID, `{"paid_amount":"500 000","payment_method":"Espèces"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["badge"] != "Payée" {
		t.Fatalf("badge = %v", body["badge"])
	}
	saved := body["installment"].(map[string]any)
	if saved["status"] != "paid" || !strings.HasPrefix(saved["receipt_number"].(string), "REC-") {
		t.Fatalf("installment = %v", saved)
	}

	var stored models.Installment
	e.db.First(&stored, inst.ID)
	if stored.PaidAmount == nil || !stored.PaidAmount.Equal(decimal.NewFromInt(500000)) || !stored.Amount.Equal(decimal.NewFromInt(850000)) {
		t.Fatalf("stored amounts: paid=%v expected=%v", stored.PaidAmount, stored.Amount)
	}

	rr = e.do(t, http.MethodPost, target, e.owner.ID, `{}`)
	if rr.Code != http.StatusConflict || decode(t, rr)["error"] != "already_paid" {
		t.Fatalf("second payment: %d %s", rr.Code, rr.Body.String())
	}
}

func TestPayNumericAmount(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		inst models.Installment
		body string
		want decimal.Decimal
	}{
		{"integer", e.items[2], `{"paid_amount":500000}`, decimal.NewFromInt(500000)},
		{"fraction", e.items[3], `{"paid_amount":850000.5,"paid_date":"2024-03-15T09:00:00Z"}`, decimal.RequireFromString("850000.5")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, fmt.Sprintf("/echeances/%d/pay", tt.inst.ID), e.owner.ID, tt.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
			}
			var stored models.Installment
			e.db.First(&stored, tt.inst.ID)
			if !stored.IsPaid() || stored.PaidAmount == nil || !stored.PaidAmount.Equal(tt.want) {
				t.Fatalf("stored paid amount = %v, want %s", stored.PaidAmount, tt.want)
			}
		})
	}

	rr := e.do(t, http.MethodPost, fmt.Sprintf("/echeances/%d/pay", e.items[4].ID), e.owner.ID, `{"paid_amount":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("boolean amount: status %d", rr.Code)
	}
}

func TestPayRejections(t *testing.T) {
	e := newEnv(t)
	target := fmt.Sprintf("/echeances/%d/pay", e.items[0].ID)

	tests := []struct {
		name   string
		uid    uint
		body   string
		status int
		code   string
	}{
		{"malformed amount", e.owner.ID, `{"paid_amount":"abc"}`, http.StatusBadRequest, "validation_failed"},
		{"malformed date", e.owner.ID, `{"paid_date":"31/02/2024x"}`, http.StatusBadRequest, "validation_failed"},
		{"stale version", e.owner.ID, `{"version":7}`, http.StatusConflict, "concurrent_update"},
		{"other agency", e.other.ID, `{}`, http.StatusNotFound, "not_found"},
		{"viewer of the agency", e.viewer.ID, `{}`, http.StatusForbidden, "forbidden"},
		{"anonymous", 0, `{}`, http.StatusUnauthorized, "unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, target, tt.uid, tt.body)
			if rr.Code != tt.status || decode(t, rr)["error"] != tt.code {
				t.Fatalf("got %d %s", rr.Code, rr.Body.String())
			}
		})
	}

	var stored models.Installment
	e.db.First(&stored, e.items[0].ID)
	if stored.IsPaid() || stored.Version != 0 {
		t.Fatalf("installment changed by rejected requests: %+v", stored)
	}
}

func TestAgencyMemberPays(t *testing.T) {
	e := newEnv(t)
	inst := e.items[1]
	rr := e.do(t, http.MethodPost, fmt.Sprintf("/echeances/%d/pay", inst.ID), e.member.ID, `{"paid_amount":850000}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var audit models.AuditLog
	if err := e.db.Where("entity_id = ? AND action = ?", inst.ID, "pay").First(&audit).Error; err != nil {
		t.Fatalf("audit row: %v", err)
	}
	if audit.UserID != e.member.ID {
		t.Fatalf("actor = %d, want the member %d", audit.UserID, e.member.ID)
	}

	rr = e.do(t, http.MethodGet, fmt.Sprintf("/echeances/%d/receipt", inst.ID), e.owner.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("owner receipt: %d", rr.Code)
	}
}

func TestPayFormRedirects(t *testing.T) {
	e := newEnv(t)
	inst := e.items[2]
	form := url.Values{"paid_amount": {"850 000"}, "redirect": {"/echeances/upcoming"}}
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/echeances/%d/pay", inst.ID), strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(auth.WithUserID(req.Context(), e.owner.ID))
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != fmt.Sprintf("/echeances/upcoming?paid=%d", inst.ID) {
		t.Fatalf("location = %s", loc)
	}

	form.Set("paid_amount", "n/a")
	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/echeances/%d/pay", e.items[3].ID), strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(auth.WithUserID(req.Context(), e.owner.ID))
	rr = httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	if loc := rr.Header().Get("Location"); loc != "/echeances/upcoming?error=validation_failed" {
		t.Fatalf("location = %s", loc)
	}
}

func TestReminder(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, fmt.Sprintf("/echeances/%d/reminder?channel=whatsapp", e.items[0].ID), e.owner.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if !strings.HasPrefix(body["link"].(string), "https://wa.me/221771234567?text=") {
		t.Fatalf("link = %v", body["link"])
	}
	if !strings.Contains(body["body"].(string), "40 jour(s) de retard") || !strings.Contains(body["body"].(string), "Agence Teranga") {
		t.Fatalf("body = %v", body["body"])
	}

	rr = e.do(t, http.MethodGet, fmt.Sprintf("/echeances/%d/reminder?channel=sms", e.items[0].ID), e.owner.ID, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown channel: %d", rr.Code)
	}
}

func TestReceipt(t *testing.T) {
	e := newEnv(t)
	target := fmt.Sprintf("/echeances/%d/receipt", e.items[0].ID)

	if rr := e.do(t, http.MethodGet, target, e.owner.ID, ""); rr.Code != http.StatusConflict {
		t.Fatalf("unpaid receipt: %d", rr.Code)
	}
	rr := e.do(t, http.MethodPost, fmt.Sprintf("/echeances/%d/pay", e.items[0].ID), e.owner.ID, `{"receipt_number":"REC-TEST-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("pay: %d %s", rr.Code, rr.Body.String())
	}
	rr = e.do(t, http.MethodGet, target, e.owner.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("receipt: %d %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type %q", ct)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("body is not a PDF")
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "recu-REC-TEST-1.pdf") {
		t.Fatalf("disposition %q", cd)
	}
}

func TestReceiptTemplate(t *testing.T) {
	e := newEnv(t)

	got := decode(t, e.do(t, http.MethodGet, "/settings/receipt-template", e.owner.ID, ""))
	if got["config"].(map[string]any)["title"] != "Reçu de paiement" {
		t.Fatalf("default config = %v", got["config"])
	}

	rr := e.do(t, http.MethodPost, "/settings/receipt-template", e.owner.ID, `{"title":"","body":"x"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid save: %d", rr.Code)
	}
	if d := decode(t, rr)["details"].(map[string]any); d["title"] != "required" {
		t.Fatalf("details = %v", d)
	}

	rr = e.do(t, http.MethodPost, "/settings/receipt-template", e.owner.ID,
		`{"title":"Reçu {{numero_recu}}","body":"Reçu de {{acquereur}}","watermark":{"enabled":true,"text":"PAYÉ","opacity":0.2}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rr.Code, rr.Body.String())
	}
	got = decode(t, e.do(t, http.MethodGet, "/settings/receipt-template", e.owner.ID, ""))
	cfg := got["config"].(map[string]any)
	if cfg["title"] != "Reçu {{numero_recu}}" || cfg["schema_version"].(float64) != 2 {
		t.Fatalf("saved config = %v", cfg)
	}
	// templates are per agency
	other := decode(t, e.do(t, http.MethodGet, "/settings/receipt-template", e.other.ID, ""))
	if other["config"].(map[string]any)["title"] != "Reçu de paiement" {
		t.Fatal("another agency sees the owner's template")
	}
	member := decode(t, e.do(t, http.MethodGet, "/settings/receipt-template", e.member.ID, ""))
	if member["config"].(map[string]any)["title"] != "Reçu {{numero_recu}}" {
		t.Fatal("a member does not see the agency template")
	}

	rr = e.do(t, http.MethodPost, "/settings/receipt-template/preview", e.owner.ID, `{"title":"Reçu {{numero_recu}}","body":"Reçu de {{acquereur}}"}`)
	prev := decode(t, rr)
	if prev["Title"] != "Reçu REC-20240115-1A2B3C4D" || prev["Body"] != "Reçu de Aïssatou Diop" {
		t.Fatalf("preview = %v", prev)
	}
}

func TestLogin(t *testing.T) {
	conn := openTestDB(t)
	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatal(err)
	}
	conn.Create(&models.User{Email: "agent@example.com", Password: hash})
	h := NewAuthHandler(conn)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"ok", `{"email":"Agent@Example.com","password":"secret"}`, http.StatusOK},
		{"wrong password", `{"email":"agent@example.com","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"email":"who@example.com","password":"secret"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")
			rr := httptest.NewRecorder()
			h.Login(rr, req)
			if rr.Code != tt.status {
				t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
			}
			hasCookie := false
			for _, c := range rr.Result().Cookies() {
				if c.Name == "session" && c.Value != "" {
					hasCookie = true
				}
			}
			if hasCookie != (tt.status == http.StatusOK) {
				t.Fatalf("session cookie set = %v", hasCookie)
			}
		})
	}
}

type recordingInvalidator struct{ ids []uint }

func (r *recordingInvalidator) InvalidateUser(id uint) { r.ids = append(r.ids, id) }

type teamEnv struct {
	conn     *gorm.DB
	mux      *http.ServeMux
	inv      *recordingInvalidator
	agent    models.Profile
	admin    models.User
	member   models.User
	outsider models.User
}

func newTeamEnv(t *testing.T) *teamEnv {
	t.Helper()
	conn := openTestDB(t)
	if err := db.Seed(conn); err != nil {
		t.Fatal(err)
	}
	te := &teamEnv{conn: conn, inv: &recordingInvalidator{}}
	conn.Where("name = ?", "agent").First(&te.agent)
	te.admin = models.User{Email: "admin@example.com", Password: "x"}
	te.outsider = models.User{Email: "outsider@example.com", Password: "x"}
	conn.Create(&te.admin)
	conn.Create(&te.outsider)
	te.member = models.User{Email: "member@example.com", Password: "x", AgencyOwnerID: &te.admin.ID}
	conn.Create(&te.member)

	h := NewTeamHandler(conn, store.NewGormStore(conn), te.inv)
	te.mux = http.NewServeMux()
	te.mux.HandleFunc("GET /admin/team", h.List)
	te.mux.HandleFunc("POST /admin/team", h.AddMember)
	te.mux.HandleFunc("POST /admin/team/{id}/profile", h.AssignProfile)
	return te
}

// post sends a form as the admin.
func (te *teamEnv) post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req = req.WithContext(auth.WithUserID(req.Context(), te.admin.ID))
	rr := httptest.NewRecorder()
	te.mux.ServeHTTP(rr, req)
	return rr
}

func TestTeamAssignProfile(t *testing.T) {
	te := newTeamEnv(t)
	assign := func(userID uint, profileID string) *httptest.ResponseRecorder {
		return te.post(fmt.Sprintf("/admin/team/%d/profile", userID), url.Values{"profile_id": {profileID}})
	}

	if rr := assign(te.member.ID, fmt.Sprint(te.agent.ID)); rr.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", rr.Code, rr.Body.String())
	}
	var got models.User
	te.conn.First(&got, te.member.ID)
	if got.ProfileID == nil || *got.ProfileID != te.agent.ID {
		t.Fatalf("profile_id = %v", got.ProfileID)
	}
	if len(te.inv.ids) != 1 || te.inv.ids[0] != te.member.ID {
		t.Fatalf("invalidated %v", te.inv.ids)
	}

	if rr := assign(te.member.ID, "0"); rr.Code != http.StatusOK {
		t.Fatalf("clear: %d", rr.Code)
	}
	te.conn.First(&got, te.member.ID)
	if got.ProfileID != nil {
		t.Fatalf("profile not cleared: %v", *got.ProfileID)
	}
	if rr := assign(te.member.ID, "9999"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown profile: %d", rr.Code)
	}
	if rr := assign(9999, fmt.Sprint(te.agent.ID)); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown user: %d", rr.Code)
	}

	if rr := assign(te.outsider.ID, fmt.Sprint(te.agent.ID)); rr.Code != http.StatusNotFound {
		t.Fatalf("user of another agency: %d", rr.Code)
	}
	te.conn.First(&got, te.outsider.ID)
	if got.ProfileID != nil {
		t.Fatal("profile assigned across agencies")
	}
}

func TestTeamListScopedToAgency(t *testing.T) {
	te := newTeamEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/team", nil)
	req.Header.Set("Accept", "application/json")
	req = req.WithContext(auth.WithUserID(req.Context(), te.admin.ID))
	rr := httptest.NewRecorder()
	te.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Users []models.User `json:"users"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	var emails []string
	for _, u := range body.Users {
		emails = append(emails, u.Email)
	}
	if strings.Join(emails, ",") != "admin@example.com,member@example.com" {
		t.Fatalf("users = %v", emails)
	}
}

func TestTeamAddMember(t *testing.T) {
	te := newTeamEnv(t)

	rr := te.post("/admin/team", url.Values{
		"email":      {" New.Agent@Example.com "},
		"name":       {"Moussa Sow"},
		"password":   {"long-enough"},
		"profile_id": {fmt.Sprint(te.agent.ID)},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var created models.User
	if err := te.conn.Where("email = ?", "new.agent@example.com").First(&created).Error; err != nil {
		t.Fatalf("member not stored: %v", err)
	}
	if created.AgencyID() != te.admin.ID {
		t.Fatalf("agency = %d, want %d", created.AgencyID(), te.admin.ID)
	}
	if created.ProfileID == nil || *created.ProfileID != te.agent.ID {
		t.Fatalf("profile_id = %v", created.ProfileID)
	}
	if err := auth.CheckPassword(created.Password, "long-enough"); err != nil {
		t.Fatalf("password not hashed: %v", err)
	}

	tests := []struct {
		name  string
		form  url.Values
		field string
		code  string
	}{
		{"taken email", url.Values{"email": {"member@example.com"}, "password": {"long-enough"}}, "email", "already_taken"},
		{"bad email", url.Values{"email": {"nope"}, "password": {"long-enough"}}, "email", "invalid_email"},
		{"short password", url.Values{"email": {"x@example.com"}, "password": {"short"}}, "password", "out_of_range"},
		{"missing password", url.Values{"email": {"x@example.com"}}, "password", "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := te.post("/admin/team", tt.form)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
			}
			if d := decode(t, rr)["details"].(map[string]any); d[tt.field] != tt.code {
				t.Fatalf("details = %v", d)
			}
		})
	}
}

func TestEcheanceOptionsDefaults(t *testing.T) {
	h := NewEcheanceHandler(nil, nil, nil, EcheanceOptions{})
	if h.opts.Views != echeance.DefaultViews {
		t.Fatalf("views = %+v, want %+v", h.opts.Views, echeance.DefaultViews)
	}
	custom := echeance.Views{Classifier: echeance.Classifier{SoonDays: 3}, UpcomingDays: 14, CriticalDays: 60}
	if h := NewEcheanceHandler(nil, nil, nil, EcheanceOptions{Views: custom}); h.opts.Views != custom {
		t.Fatalf("custom views replaced: %+v", h.opts.Views)
	}
}
