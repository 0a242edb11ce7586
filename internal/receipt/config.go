// Package receipt renders payment receipts from an agency's template.
//
// A Config is a versioned document: it is decoded and upgraded on read,
// validated on write, and always passed explicitly to Render and PDF.
package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/diewo77/go-immo/validation"
)

// CurrentSchemaVersion is written by Encode. Version 1 documents predate
// the watermark block and used single-brace {name} placeholders.
const CurrentSchemaVersion = 2

var ErrUnsupportedSchema = errors.New("unsupported receipt template schema version")

type Watermark struct {
	Enabled bool    `json:"enabled"`
	Text    string  `json:"text" validate:"max=40"`
	Opacity float64 `json:"opacity" validate:"gte=0,lte=1"`
}

type Config struct {
	SchemaVersion int       `json:"schema_version"`
	Title         string    `json:"title" validate:"required,max=120"`
	Header        string    `json:"header" validate:"max=500"`
	Body          string    `json:"body" validate:"required,max=4000"`
	Footer        string    `json:"footer" validate:"max=500"`
	Currency      string    `json:"currency" validate:"max=8"`
	Locale        string    `json:"locale" validate:"omitempty,oneof=fr en"`
	ShowLogo      bool      `json:"show_logo"`
	Watermark     Watermark `json:"watermark"`
}

// DefaultConfig is used until an agency saves its own template.
func DefaultConfig() Config {
	return Config{
		SchemaVersion: CurrentSchemaVersion,
		Title:         "Reçu de paiement",
		Header:        "{{agence}}",
		Body: "Nous soussignés, {{agence}}, reconnaissons avoir reçu de {{acquereur}} " +
			"la somme de {{montant}} au titre de l'échéance du {{date_echeance}} " +
			"pour le bien « {{bien}} ».",
		Footer:   "Reçu n° {{numero_recu}} - payé le {{date_paiement}}",
		Currency: "FCFA",
		Locale:   "fr",
		ShowLogo: true,
		Watermark: Watermark{
			Enabled: false,
			Text:    "PAYÉ",
			Opacity: 0.15,
		},
	}
}

var legacyPlaceholder = regexp.MustCompile(`\{\{?\s*([a-z_]+)\s*\}?\}`)

// Upgrade migrates c to CurrentSchemaVersion.
func (c Config) Upgrade() (Config, error) {
	switch {
	case c.SchemaVersion > CurrentSchemaVersion:
		return c, fmt.Errorf("%w: %d", ErrUnsupportedSchema, c.SchemaVersion)
	case c.SchemaVersion == CurrentSchemaVersion:
		return c, nil
	}
	// v0 (unversioned) and v1
	for _, s := range []*string{&c.Title, &c.Header, &c.Body, &c.Footer} {
		*s = legacyPlaceholder.ReplaceAllString(*s, "{{$1}}")
	}
	def := DefaultConfig()
	c.Watermark = def.Watermark
	if c.Currency == "" {
		c.Currency = def.Currency
	}
	if c.Locale == "" {
		c.Locale = def.Locale
	}
	c.SchemaVersion = CurrentSchemaVersion
	return c, nil
}

// Decode parses a stored document and upgrades it.
func Decode(doc string) (Config, error) {
	var c Config
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return Config{}, fmt.Errorf("decode receipt template: %w", err)
	}
	return c.Upgrade()
}

// Encode serializes c at the current schema version.
func (c Config) Encode() (string, error) {
	c.SchemaVersion = CurrentSchemaVersion
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Validate returns field violations keyed by json name.
func (c Config) Validate() (validation.Violations, error) {
	return validation.Struct(c)
}
