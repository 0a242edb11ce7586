package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/diewo77/go-immo/auth"
	"github.com/diewo77/go-immo/gate"
	"github.com/diewo77/go-immo/i18n"
	"github.com/diewo77/go-immo/internal/config"
	"github.com/diewo77/go-immo/internal/handlers"
	"github.com/diewo77/go-immo/internal/policy"
	"github.com/diewo77/go-immo/view"
	"github.com/justinas/alice"
	"github.com/rs/cors"
	"gorm.io/gorm"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux       *http.ServeMux
	handler   http.Handler
	db        *gorm.DB
	routerCfg *policy.RouterConfig
}

// NewApp creates a new application with all routes configured.
func NewApp(db *gorm.DB, routerCfg *policy.RouterConfig, cfg *config.Config) *App {
	app := &App{
		mux:       http.NewServeMux(),
		db:        db,
		routerCfg: routerCfg,
	}
	// Templates check permissions through callbacks so view does not import policy.
	view.SetCanProfileResolver(func(r *http.Request, resource, action string) bool {
		return routerCfg.AuthGate.CanProfile(r.Context(), gate.Action(action), resource)
	})
	view.SetIsAdminResolver(func(r *http.Request) bool {
		return routerCfg.AuthGate.IsAdmin(r.Context())
	})
	view.SetLangResolver(func(r *http.Request) string {
		return i18n.LangFromContext(r.Context())
	})
	view.SetThemeResolver(func(r *http.Request) string {
		return view.ThemeFromContext(r.Context())
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.App.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Accept-Language"},
		AllowCredentials: true,
	})
	app.handler = alice.New(recoverPanic, corsHandler.Handler, auth.Middleware, withPreferences).Then(app.mux)
	app.setupRoutes()
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Public routes (no auth required)
	// ─────────────────────────────────────────────────────────────────────────
	ah := a.routerCfg.AuthHandler

	a.mux.HandleFunc("GET /{$}", a.home)
	a.mux.HandleFunc("GET /healthz", handlers.Healthz(a.db))
	a.mux.HandleFunc("GET /login", ah.Login)
	a.mux.HandleFunc("POST /login", ah.Login)
	a.mux.HandleFunc("POST /logout", ah.Logout)

	// ─────────────────────────────────────────────────────────────────────────
	// Installments (require auth + echeance permissions)
	// ─────────────────────────────────────────────────────────────────────────
	eh := a.routerCfg.EcheanceHandler

	a.mux.Handle("GET /echeances",
		a.requireAuth(a.requirePermission(policy.ResourceEcheance, gate.ActionList)(http.HandlerFunc(eh.List))))
	a.mux.Handle("GET /echeances/upcoming",
		a.requireAuth(a.requirePermission(policy.ResourceEcheance, gate.ActionList)(http.HandlerFunc(eh.Upcoming))))
	a.mux.Handle("GET /echeances/late",
		a.requireAuth(a.requirePermission(policy.ResourceEcheance, gate.ActionList)(http.HandlerFunc(eh.Late))))
	a.mux.Handle("POST /echeances/{id}/pay",
		a.requireAuth(a.requirePermission(policy.ResourceEcheance, gate.ActionPay)(http.HandlerFunc(eh.Pay))))
	a.mux.Handle("GET /echeances/{id}/reminder",
		a.requireAuth(a.requirePermission(policy.ResourceEcheance, gate.ActionRemind)(http.HandlerFunc(eh.Reminder))))
	a.mux.Handle("GET /echeances/{id}/receipt",
		a.requireAuth(a.requirePermission(policy.ResourceEcheance, gate.ActionView)(http.HandlerFunc(eh.Receipt))))

	// ─────────────────────────────────────────────────────────────────────────
	// Receipt template settings
	// ─────────────────────────────────────────────────────────────────────────
	rh := a.routerCfg.ReceiptTemplateHandler

	a.mux.Handle("GET /settings/receipt-template",
		a.requireAuth(a.requirePermission(policy.ResourceReceiptTemplate, gate.ActionView)(http.HandlerFunc(rh.Get))))
	a.mux.Handle("POST /settings/receipt-template",
		a.requireAuth(a.requirePermission(policy.ResourceReceiptTemplate, gate.ActionUpdate)(http.HandlerFunc(rh.Save))))
	a.mux.Handle("POST /settings/receipt-template/preview",
		a.requireAuth(a.requirePermission(policy.ResourceReceiptTemplate, gate.ActionView)(http.HandlerFunc(rh.Preview))))

	// ─────────────────────────────────────────────────────────────────────────
	// Admin routes (require the *:* profile)
	// ─────────────────────────────────────────────────────────────────────────
	th := a.routerCfg.TeamHandler

	a.mux.Handle("GET /admin/team",
		a.requireAuth(a.requireAdmin(http.HandlerFunc(th.List))))
	a.mux.Handle("POST /admin/team",
		a.requireAuth(a.requireAdmin(http.HandlerFunc(th.AddMember))))
	a.mux.Handle("POST /admin/team/{id}/profile",
		a.requireAuth(a.requireAdmin(http.HandlerFunc(th.AssignProfile))))

	a.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) requireAuth(next http.Handler) http.Handler {
	return auth.RequireAuth(next)
}

func (a *App) requireAdmin(next http.Handler) http.Handler {
	return a.routerCfg.AuthGate.RequireAdmin()(next)
}

func (a *App) requirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return a.routerCfg.AuthGate.RequirePermission(resourceType, action)
}

// withPreferences stores the language and theme in the request context.
// Language comes from the query, the lang cookie or Accept-Language, in that
// order. Query values are persisted in cookies.
func withPreferences(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := i18n.DetectLanguage(r.Header.Get("Accept-Language"))
		if c, err := r.Cookie("lang"); err == nil && c.Value != "" {
			lang = i18n.Normalize(c.Value)
		}
		if q := r.URL.Query().Get("lang"); q != "" {
			lang = i18n.Normalize(q)
			setPreference(w, "lang", lang)
		}
		theme := "system"
		if c, err := r.Cookie("theme"); err == nil && validTheme(c.Value) {
			theme = c.Value
		}
		if q := r.URL.Query().Get("theme"); validTheme(q) {
			theme = q
			setPreference(w, "theme", theme)
		}
		ctx := i18n.WithLang(r.Context(), lang)
		ctx = view.WithTheme(ctx, theme)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validTheme(t string) bool {
	return t == "light" || t == "dark" || t == "system"
}

func setPreference(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				log.Printf("panic: %s %s: %v", r.Method, r.URL.Path, fmt.Sprint(err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *App) home(w http.ResponseWriter, r *http.Request) {
	if _, loggedIn := auth.UserIDFromContext(r.Context()); loggedIn {
		http.Redirect(w, r, "/echeances/upcoming", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
