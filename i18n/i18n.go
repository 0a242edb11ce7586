// Package i18n holds the fr/en message catalogue. French is the default and
// the fallback for unknown languages; unknown codes are returned verbatim.
package i18n

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const DefaultLang = "fr"

var catalogue = map[string]map[string]string{
	"fr": {
		"required":               "Requis",
		"must_be_positive":       "Doit être positif",
		"out_of_range":           "Hors limites",
		"invalid_amount":         "Montant invalide",
		"invalid_date":           "Date invalide",
		"invalid_month":          "Mois invalide",
		"invalid_email":          "Email invalide",
		"already_taken":          "Déjà utilisé",
		"too_long":               "Trop long",
		"badge_paid":             "Payée",
		"badge_overdue":          "En retard de %dj",
		"badge_due_today":        "Aujourd'hui",
		"badge_due_soon":         "Dans %dj",
		"badge_pending":          "À venir",
		"urgency_critical":       "Urgent",
		"urgency_soon":           "Cette semaine",
		"urgency_normal":         "Ce mois-ci",
		"payment_recorded":       "Paiement enregistré",
		"payment_in_flight":      "Un paiement est déjà en cours pour cette échéance",
		"payment_already_done":   "Cette échéance est déjà payée",
		"persistence_failed":     "L'enregistrement a échoué, veuillez réessayer",
		"template_saved":         "Modèle de reçu enregistré",
		"reminder_subject":       "Rappel d'échéance - %s",
		"reminder_body_overdue":  "Bonjour %s,\n\nSauf erreur de notre part, l'échéance de %s pour le bien « %s », due le %s, reste impayée (%d jour(s) de retard).\n\nMerci de régulariser votre situation.\n\n%s",
		"reminder_body_upcoming": "Bonjour %s,\n\nNous vous rappelons que l'échéance de %s pour le bien « %s » arrive à échéance le %s.\n\nCordialement,\n%s",
		"invalid_credentials":    "Email ou mot de passe invalide",
		"forbidden":              "Accès refusé",
	},
	"en": {
		"required":               "Required",
		"must_be_positive":       "Must be positive",
		"out_of_range":           "Out of range",
		"invalid_amount":         "Invalid amount",
		"invalid_date":           "Invalid date",
		"invalid_month":          "Invalid month",
		"invalid_email":          "Invalid email",
		"already_taken":          "Already taken",
		"too_long":               "Too long",
		"badge_paid":             "Paid",
		"badge_overdue":          "%dd late",
		"badge_due_today":        "Today",
		"badge_due_soon":         "In %dd",
		"badge_pending":          "Upcoming",
		"urgency_critical":       "Urgent",
		"urgency_soon":           "This week",
		"urgency_normal":         "This month",
		"payment_recorded":       "Payment recorded",
		"payment_in_flight":      "A payment is already being recorded for this installment",
		"payment_already_done":   "This installment is already paid",
		"persistence_failed":     "Saving failed, please try again",
		"template_saved":         "Receipt template saved",
		"reminder_subject":       "Installment reminder - %s",
		"reminder_body_overdue":  "Hello %s,\n\nOur records show that the installment of %s for \"%s\", due on %s, is still unpaid (%d day(s) late).\n\nPlease settle it at your earliest convenience.\n\n%s",
		"reminder_body_upcoming": "Hello %s,\n\nThis is a reminder that the installment of %s for \"%s\" is due on %s.\n\nBest regards,\n%s",
		"invalid_credentials":    "Invalid email or password",
		"forbidden":              "Forbidden",
	},
}

// Normalize maps a language tag to a supported language.
func Normalize(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	if _, ok := catalogue[l]; ok {
		return l
	}
	return DefaultLang
}

// T translates code. Unknown languages fall back to French, unknown codes
// to the code itself.
func T(lang, code string) string {
	if msgs, ok := catalogue[Normalize(lang)]; ok {
		if m, ok := msgs[code]; ok {
			return m
		}
	}
	if m, ok := catalogue[DefaultLang][code]; ok {
		return m
	}
	return code
}

// Tf translates code and formats it with args.
func Tf(lang, code string, args ...any) string {
	return fmt.Sprintf(T(lang, code), args...)
}

var matcher = language.NewMatcher([]language.Tag{language.French, language.English})

// DetectLanguage picks fr or en from an Accept-Language header.
func DetectLanguage(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLang
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLang
	}
	if idx == 1 {
		return "en"
	}
	return DefaultLang
}

// FormatAmount formats an amount with the language's digit grouping, with
// decimals only when the amount has a fractional part.
func FormatAmount(lang string, amount decimal.Decimal, currency string) string {
	tag := language.French
	if Normalize(lang) == "en" {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	var s string
	if amount.Equal(amount.Truncate(0)) {
		s = p.Sprintf("%d", amount.IntPart())
	} else {
		f, _ := amount.Round(2).Float64()
		s = p.Sprintf("%.2f", f)
	}
	if currency == "" {
		return s
	}
	return s + " " + currency
}

type ctxKey struct{}

// WithLang stores the request language in ctx.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, ctxKey{}, Normalize(lang))
}

// LangFromContext returns the request language, French when unset.
func LangFromContext(ctx context.Context) string {
	if l, ok := ctx.Value(ctxKey{}).(string); ok && l != "" {
		return l
	}
	return DefaultLang
}
