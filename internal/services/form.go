package services

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/diewo77/go-immo/internal/echeance"
	"github.com/diewo77/go-immo/validation"
	"github.com/shopspring/decimal"
)

// Amount is a paid amount as submitted: JSON clients may send a number
// (500000) or a formatted string ("500 000,50"). Both are checked by
// ParseAmount.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// PaymentRequest is the wire shape of a payment submission, shared by the
// HTML form and the JSON API. Empty fields take their defaults.
type PaymentRequest struct {
	PaidDate      string `json:"paid_date"`
	PaidAmount    Amount `json:"paid_amount"`
	PaymentMethod string `json:"payment_method" validate:"max=50"`
	ReceiptNumber string `json:"receipt_number" validate:"max=64"`
	Version       *int   `json:"version" validate:"omitempty,gte=0"`
}

// ParsePaymentForm reads a PaymentRequest from form values.
func ParsePaymentForm(id uint, values url.Values) (RecordPaymentInput, error) {
	req := PaymentRequest{
		PaidDate:      values.Get("paid_date"),
		PaidAmount:    Amount(values.Get("paid_amount")),
		PaymentMethod: values.Get("payment_method"),
		ReceiptNumber: values.Get("receipt_number"),
	}
	if v := strings.TrimSpace(values.Get("version")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return RecordPaymentInput{}, &ValidationError{Violations: validation.Violations{"version": "out_of_range"}}
		}
		req.Version = &n
	}
	return ParsePaymentRequest(id, req)
}

// ParsePaymentRequest validates req and converts it to a RecordPaymentInput.
// Malformed amounts and dates are rejected here, before any store access.
func ParsePaymentRequest(id uint, req PaymentRequest) (RecordPaymentInput, error) {
	v, err := validation.Struct(req)
	if err != nil {
		return RecordPaymentInput{}, err
	}
	in := RecordPaymentInput{
		InstallmentID:   id,
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		ReceiptNumber:   strings.TrimSpace(req.ReceiptNumber),
		ExpectedVersion: req.Version,
	}
	if s := strings.TrimSpace(req.PaidDate); s != "" {
		d, ok := parseDate(s)
		if !ok {
			v.Add("paid_date", "invalid_date")
		} else {
			in.PaidDate = &d
		}
	}
	if s := strings.TrimSpace(string(req.PaidAmount)); s != "" {
		amt, ok := ParseAmount(s)
		if !ok {
			v.Add("paid_amount", "invalid_amount")
		} else {
			in.PaidAmount = &amt
		}
	}
	if !v.Empty() {
		return RecordPaymentInput{}, &ValidationError{Violations: v}
	}
	return in, nil
}

// parseDate accepts 2006-01-02 (HTML date input), an RFC 3339 timestamp
// (JSON clients) and 02/01/2006.
func parseDate(s string) (civil.Date, bool) {
	if d, err := echeance.ParseDueDate(s); err == nil {
		return d, true
	}
	if t, err := time.Parse("02/01/2006", s); err == nil {
		return civil.DateOf(t), true
	}
	return civil.Date{}, false
}

// ParseAmount accepts French formatted amounts: spaces (including
// non-breaking ones) as thousands separators and a comma or a dot as the
// decimal separator.
func ParseAmount(s string) (decimal.Decimal, bool) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t':
			return -1
		case ',':
			return '.'
		}
		return r
	}, strings.TrimSpace(s))
	clean = strings.TrimSuffix(strings.TrimSuffix(clean, "FCFA"), "€")
	if clean == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
