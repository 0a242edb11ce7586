// Package reminder prepares payment reminder messages. Nothing is sent:
// callers get links that open the agent's mail client or WhatsApp with the
// message filled in.
package reminder

import (
	"errors"
	"net/url"
	"strings"

	"github.com/diewo77/go-immo/i18n"
	"github.com/diewo77/go-immo/internal/echeance"
	"github.com/diewo77/go-immo/internal/models"
	"github.com/shopspring/decimal"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

var (
	ErrUnknownChannel = errors.New("unknown reminder channel")
	ErrNoContact      = errors.New("buyer has no contact for this channel")
)

// ParseChannel defaults to email.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case "", ChannelEmail:
		return ChannelEmail, nil
	case ChannelWhatsApp:
		return ChannelWhatsApp, nil
	}
	return "", ErrUnknownChannel
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

type Details struct {
	Property string
	Amount   decimal.Decimal
	Currency string
	DueDate  string
	DaysLate int
	Agency   string
}

type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ContactFor reads the buyer of a preloaded installment.
func ContactFor(inst *models.Installment) Contact {
	if inst.Sale == nil || inst.Sale.Buyer == nil {
		return Contact{}
	}
	b := inst.Sale.Buyer
	return Contact{Name: b.Name, Email: b.Email, Phone: b.Phone}
}

// DetailsFor summarizes an installment and its classification.
func DetailsFor(inst *models.Installment, class echeance.Classification, agency, currency string) Details {
	d := Details{
		Property: inst.PropertyTitle(),
		Amount:   inst.Amount,
		Currency: currency,
		Agency:   agency,
	}
	if !inst.DueDate.IsZero() {
		d.DueDate = inst.DueDate.Format("02/01/2006")
	}
	if class.State == echeance.StateOverdue {
		d.DaysLate = class.DaysLate
	}
	return d
}

// Compose writes the reminder in lang. Overdue installments get the
// overdue wording.
func Compose(c Contact, d Details, lang string) Message {
	amount := i18n.FormatAmount(lang, d.Amount, d.Currency)
	name := c.Name
	if name == "" {
		name = "Madame, Monsieur"
		if i18n.Normalize(lang) == "en" {
			name = "Sir or Madam"
		}
	}
	var body string
	if d.DaysLate > 0 {
		body = i18n.Tf(lang, "reminder_body_overdue", name, amount, d.Property, d.DueDate, d.DaysLate, d.Agency)
	} else {
		body = i18n.Tf(lang, "reminder_body_upcoming", name, amount, d.Property, d.DueDate, d.Agency)
	}
	return Message{
		Subject: i18n.Tf(lang, "reminder_subject", d.Property),
		Body:    strings.TrimSpace(body),
	}
}

// MailtoLink builds a mailto: URL with subject and body.
func MailtoLink(to string, m Message) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return "", ErrNoContact
	}
	q := url.Values{}
	q.Set("subject", m.Subject)
	q.Set("body", m.Body)
	// mail clients expect %20, not +
	return "mailto:" + url.PathEscape(to) + "?" + strings.ReplaceAll(q.Encode(), "+", "%20"), nil
}

// WhatsAppLink builds a wa.me URL. The phone keeps its digits only, as
// wa.me requires the international number without "+" or spaces.
func WhatsAppLink(phone string, m Message) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if strings.HasPrefix(strings.TrimSpace(phone), "00") {
		digits = strings.TrimPrefix(digits, "00")
	}
	if digits == "" {
		return "", ErrNoContact
	}
	return "https://wa.me/" + digits + "?text=" + url.QueryEscape(m.Subject+"\n\n"+m.Body), nil
}

// Link composes the message and returns the link for channel.
func Link(ch Channel, c Contact, m Message) (string, error) {
	switch ch {
	case ChannelEmail:
		return MailtoLink(c.Email, m)
	case ChannelWhatsApp:
		return WhatsAppLink(c.Phone, m)
	}
	return "", ErrUnknownChannel
}
