// Package view renders the HTML pages: a page template inside layout.html,
// partials from templates/partials, and helpers bound to the request.
package view

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/diewo77/go-immo/auth"
	"github.com/diewo77/go-immo/i18n"
	"github.com/shopspring/decimal"
)

type themeKey struct{}

// WithTheme returns a new context with the given theme.
func WithTheme(ctx context.Context, theme string) context.Context {
	return context.WithValue(ctx, themeKey{}, theme)
}

// ThemeFromContext retrieves the theme from context, defaulting to "system".
func ThemeFromContext(ctx context.Context) string {
	if theme, ok := ctx.Value(themeKey{}).(string); ok && theme != "" {
		return theme
	}
	return "system"
}

// Badger is implemented by rows that carry a localized status badge.
type Badger interface {
	BadgeIn(lang string) string
}

const noValue = "—"

var (
	baseDir string
	once    sync.Once
	cache   = struct {
		sync.RWMutex
		pages  map[string]*template.Template
		assets map[string]string
	}{pages: map[string]*template.Template{}, assets: map[string]string{}}

	langResolver  = func(r *http.Request) string { return i18n.LangFromContext(r.Context()) }
	themeResolver = func(r *http.Request) string { return ThemeFromContext(r.Context()) }
	// set by the host app so templates can check permissions
	canProfileResolver func(*http.Request, string, string) bool
	isAdminResolver    func(*http.Request) bool
	currency           = "FCFA"
)

// SetCanProfileResolver sets the callback behind the "can" helper.
func SetCanProfileResolver(f func(*http.Request, string, string) bool) {
	if f != nil {
		canProfileResolver = f
	}
}

// SetIsAdminResolver sets the callback behind the "isAdmin" helper.
func SetIsAdminResolver(f func(*http.Request) bool) {
	if f != nil {
		isAdminResolver = f
	}
}

func SetLangResolver(f func(*http.Request) string) {
	if f != nil {
		langResolver = f
	}
}

func SetThemeResolver(f func(*http.Request) string) {
	if f != nil {
		themeResolver = f
	}
}

// SetCurrency sets the currency printed by the amount helper.
func SetCurrency(c string) {
	currency = c
}

// SetBaseDir overrides the templates root.
func SetBaseDir(path string) {
	if path == "" {
		return
	}
	baseDir = filepath.Clean(path)
	once = sync.Once{}
}

// ResetForTests clears caches and reruns base dir detection.
func ResetForTests() {
	cache.Lock()
	cache.pages = map[string]*template.Template{}
	cache.assets = map[string]string{}
	cache.Unlock()
	baseDir = ""
	once = sync.Once{}
}

func detectBase() {
	for _, c := range []string{"templates", "../templates", "../../templates"} {
		if fi, err := os.Stat(c); err == nil && fi.IsDir() {
			baseDir = filepath.Clean(c)
			return
		}
	}
	baseDir = "templates"
}

func devMode() bool {
	return os.Getenv("DEV") == "1"
}

// Funcs returns the helpers for r. A nil r gives the defaults used at parse time.
func Funcs(r *http.Request) template.FuncMap {
	lang := i18n.DefaultLang
	theme := "system"
	if r != nil {
		lang = langResolver(r)
		theme = themeResolver(r)
	}
	return template.FuncMap{
		"t":     func(code string) string { return i18n.T(lang, code) },
		"tf":    func(code string, args ...any) string { return i18n.Tf(lang, code, args...) },
		"lang":  func() string { return lang },
		"theme": func() string { return theme },
		"can": func(resource, action string) bool {
			return r != nil && canProfileResolver != nil && canProfileResolver(r, resource, action)
		},
		"isAdmin": func() bool {
			return r != nil && isAdminResolver != nil && isAdminResolver(r)
		},
		"asset": asset,
		"amount": func(v any) string {
			switch d := v.(type) {
			case decimal.Decimal:
				return i18n.FormatAmount(lang, d, currency)
			case *decimal.Decimal:
				if d != nil {
					return i18n.FormatAmount(lang, *d, currency)
				}
			}
			return noValue
		},
		"badge": func(b Badger) string { return b.BadgeIn(lang) },
		"deref": func(p *uint) uint {
			if p == nil {
				return 0
			}
			return *p
		},
		"date": func(v any) string {
			var t time.Time
			switch d := v.(type) {
			case time.Time:
				t = d
			case *time.Time:
				if d != nil {
					t = *d
				}
			}
			if t.IsZero() {
				return noValue
			}
			if lang == "en" {
				return t.Format("2006-01-02")
			}
			return t.Format("02/01/2006")
		},
		// {{ template "partial" (dict "Key" val) }}
		"dict": func(values ...any) map[string]any {
			if len(values)%2 != 0 {
				return nil
			}
			m := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				if key, ok := values[i].(string); ok {
					m[key] = values[i+1]
				}
			}
			return m
		},
	}
}

// asset returns /static/<rel>?v=<hash of the file> so browsers refetch
// after a deploy. Hashes are cached outside dev mode.
func asset(rel string) string {
	if strings.Contains(rel, "//") {
		return rel
	}
	if !devMode() {
		cache.RLock()
		u, ok := cache.assets[rel]
		cache.RUnlock()
		if ok {
			return u
		}
	}
	u := "/static/" + rel
	if b, err := os.ReadFile(filepath.Join("static", rel)); err == nil {
		h := sha1.Sum(b)
		u += fmt.Sprintf("?v=%x", h[:8])
	}
	if !devMode() {
		cache.Lock()
		cache.assets[rel] = u
		cache.Unlock()
	}
	return u
}

// Render executes name (relative to the templates root, e.g.
// "echeances/index.html") inside layout.html and writes it as HTML.
func Render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) error {
	if baseDir == "" {
		once.Do(detectBase)
	}
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Year"]; !ok {
		data["Year"] = time.Now().Year()
	}
	if _, ok := data["IsLoggedIn"]; !ok {
		_, loggedIn := auth.UserIDFromContext(r.Context())
		data["IsLoggedIn"] = loggedIn
	}

	t, err := lookup(name)
	if err != nil {
		return err
	}
	// helpers are rebound on a clone so the cached tree stays request-free
	t, err = t.Clone()
	if err != nil {
		return err
	}
	t.Funcs(Funcs(r))

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}

func lookup(name string) (*template.Template, error) {
	if !devMode() {
		cache.RLock()
		t, ok := cache.pages[name]
		cache.RUnlock()
		if ok {
			return t, nil
		}
	}
	t, err := parse(name)
	if err != nil {
		return nil, err
	}
	if !devMode() {
		cache.Lock()
		cache.pages[name] = t
		cache.Unlock()
	}
	return t, nil
}

// layoutBase walks up from a page to the directory holding layout.html,
// or returns the page's own directory.
func layoutBase(page string) string {
	d := filepath.Dir(page)
	for {
		if fi, err := os.Stat(filepath.Join(d, "layout.html")); err == nil && !fi.IsDir() {
			return d
		}
		p := filepath.Dir(d)
		if p == d {
			return filepath.Dir(page)
		}
		d = p
	}
}

func parse(name string) (*template.Template, error) {
	page := filepath.Join(baseDir, name)
	if _, err := os.Stat(page); err != nil {
		found := false
		for _, dir := range []string{"templates", "../templates", "../../templates", "../../../templates"} {
			c := filepath.Join(dir, name)
			if fi, e := os.Stat(c); e == nil && !fi.IsDir() {
				page, found = c, true
				break
			}
		}
		if !found {
			return nil, err
		}
		baseDir = layoutBase(page)
	}
	content, err := os.ReadFile(page)
	if err != nil {
		return nil, err
	}
	files := []string{page}
	root := filepath.Base(page)
	// full documents skip the layout
	if !bytes.Contains(bytes.ToLower(content), []byte("<!doctype")) {
		layout := filepath.Join(baseDir, "layout.html")
		if fi, err := os.Stat(layout); err == nil && !fi.IsDir() {
			files = []string{layout, page}
			root = "layout.html"
		}
	}
	if partials, _ := filepath.Glob(filepath.Join(baseDir, "partials", "*.html")); len(partials) > 0 {
		files = append(files, partials...)
	}
	return template.New(root).Funcs(Funcs(nil)).ParseFiles(files...)
}
