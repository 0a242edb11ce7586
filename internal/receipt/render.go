package receipt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/diewo77/go-immo/i18n"
	"github.com/diewo77/go-immo/internal/models"
)

// Variable names usable as {{name}} in a template.
const (
	VarBuyer          = "acquereur"
	VarPhone          = "telephone"
	VarProperty       = "bien"
	VarAmount         = "montant"
	VarExpectedAmount = "montant_attendu"
	VarPaidDate       = "date_paiement"
	VarDueDate        = "date_echeance"
	VarReceiptNumber  = "numero_recu"
	VarPaymentMethod  = "mode_paiement"
	VarAgency         = "agence"
)

// Variables maps placeholder names to display values.
type Variables map[string]string

// Names lists the supported variables in display order.
func Names() []string {
	return []string{VarBuyer, VarPhone, VarProperty, VarAmount, VarExpectedAmount,
		VarPaidDate, VarDueDate, VarReceiptNumber, VarPaymentMethod, VarAgency}
}

const dateLayout = "02/01/2006"

// VariablesFor builds the variables of a paid installment. Sale, buyer and
// property must be preloaded for the corresponding values to be filled.
func VariablesFor(inst *models.Installment, agency string, cfg Config) Variables {
	lang := cfg.Locale
	v := Variables{
		VarBuyer:          inst.BuyerName(),
		VarPhone:          inst.BuyerPhone(),
		VarProperty:       inst.PropertyTitle(),
		VarExpectedAmount: i18n.FormatAmount(lang, inst.Amount, cfg.Currency),
		VarReceiptNumber:  inst.ReceiptNumber,
		VarPaymentMethod:  inst.PaymentMethod,
		VarAgency:         agency,
	}
	if !inst.DueDate.IsZero() {
		v[VarDueDate] = inst.DueDate.Format(dateLayout)
	}
	if inst.PaidAmount != nil {
		v[VarAmount] = i18n.FormatAmount(lang, *inst.PaidAmount, cfg.Currency)
	} else {
		v[VarAmount] = v[VarExpectedAmount]
	}
	if inst.PaidDate != nil {
		v[VarPaidDate] = inst.PaidDate.Format(dateLayout)
	}
	return v
}

// SampleVariables fills every variable with example values for previews.
func SampleVariables(cfg Config) Variables {
	return Variables{
		VarBuyer:          "Aïssatou Diop",
		VarPhone:          "+221 77 123 45 67",
		VarProperty:       "Parcelle 12 - Cité Keur Gorgui",
		VarAmount:         "500 000 " + cfg.Currency,
		VarExpectedAmount: "850 000 " + cfg.Currency,
		VarPaidDate:       "15/01/2024",
		VarDueDate:        "01/01/2024",
		VarReceiptNumber:  "REC-20240115-1A2B3C4D",
		VarPaymentMethod:  "Virement",
		VarAgency:         "Agence Teranga Immo",
	}
}

var placeholder = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// Substitute replaces {{name}} placeholders. Unknown names are left as is
// so a typo stays visible on the preview.
func Substitute(s string, vars Variables) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		return m
	})
}

// Field is one labelled line of the receipt details block.
type Field struct {
	Label string
	Value string
}

// Rendered is a template with its variables applied.
type Rendered struct {
	Title     string
	Header    string
	Body      string
	Footer    string
	Fields    []Field
	Watermark string
}

var fieldLabels = map[string][2]string{
	VarReceiptNumber: {"Reçu n°", "Receipt no."},
	VarBuyer:         {"Acquéreur", "Buyer"},
	VarProperty:      {"Bien", "Property"},
	VarDueDate:       {"Échéance du", "Due on"},
	VarPaidDate:      {"Payé le", "Paid on"},
	VarAmount:        {"Montant reçu", "Amount received"},
	VarPaymentMethod: {"Mode de paiement", "Payment method"},
}

// Render applies vars to cfg.
func Render(cfg Config, vars Variables) Rendered {
	r := Rendered{
		Title:  Substitute(cfg.Title, vars),
		Header: Substitute(cfg.Header, vars),
		Body:   Substitute(cfg.Body, vars),
		Footer: Substitute(cfg.Footer, vars),
	}
	idx := 0
	if i18n.Normalize(cfg.Locale) == "en" {
		idx = 1
	}
	for _, name := range []string{VarReceiptNumber, VarBuyer, VarProperty, VarDueDate, VarPaidDate, VarAmount, VarPaymentMethod} {
		if val := strings.TrimSpace(vars[name]); val != "" {
			r.Fields = append(r.Fields, Field{Label: fieldLabels[name][idx], Value: val})
		}
	}
	if cfg.Watermark.Enabled && strings.TrimSpace(cfg.Watermark.Text) != "" {
		r.Watermark = Substitute(cfg.Watermark.Text, vars)
	}
	return r
}

// Filename is the download name of a receipt.
func Filename(receiptNumber string, installmentID uint) string {
	if receiptNumber == "" {
		return fmt.Sprintf("recu-%d.pdf", installmentID)
	}
	return "recu-" + receiptNumber + ".pdf"
}
