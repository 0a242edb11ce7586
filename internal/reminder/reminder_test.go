package reminder

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-immo/internal/echeance"
	"github.com/diewo77/go-immo/internal/models"
	"github.com/shopspring/decimal"
)

func sample() (*models.Installment, echeance.Classification) {
	inst := &models.Installment{
		DueDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Amount:  decimal.NewFromInt(850000),
		Status:  models.InstallmentPending,
		Sale: &models.Sale{
			Buyer:    &models.Buyer{Name: "Moussa Fall", Email: "moussa@example.com", Phone: "+221 77 123 45 67"},
			Property: &models.PropertyListing{Title: "Villa Ngor"},
		},
	}
	return inst, echeance.Classification{State: echeance.StateOverdue, DaysLate: 14}
}

func TestComposeOverdue(t *testing.T) {
	inst, class := sample()
	m := Compose(ContactFor(inst), DetailsFor(inst, class, "Agence Teranga", "FCFA"), "fr")
	if m.Subject != "Rappel d'échéance - Villa Ngor" {
		t.Fatalf("subject = %q", m.Subject)
	}
	for _, want := range []string{"Bonjour Moussa Fall", "Villa Ngor", "01/01/2024", "14 jour(s) de retard", "Agence Teranga", "FCFA"} {
		if !strings.Contains(m.Body, want) {
			t.Fatalf("body missing %q: %q", want, m.Body)
		}
	}
}

func TestComposeUpcomingEnglish(t *testing.T) {
	inst, _ := sample()
	m := Compose(Contact{}, DetailsFor(inst, echeance.Classification{State: echeance.StateDueSoon, DaysUntil: 3}, "Agency", "EUR"), "en")
	if !strings.HasPrefix(m.Body, "Hello Sir or Madam") || strings.Contains(m.Body, "late") {
		t.Fatalf("body = %q", m.Body)
	}
	if !strings.Contains(m.Body, "850,000 EUR") {
		t.Fatalf("amount formatting: %q", m.Body)
	}
}

func TestLinks(t *testing.T) {
	m := Message{Subject: "Rappel", Body: "Bonjour & merci"}

	mail, err := MailtoLink("moussa@example.com", m)
	if err != nil {
		t.Fatalf("mailto: %v", err)
	}
	if !strings.HasPrefix(mail, "mailto:moussa@example.com?") || strings.Contains(mail, "+") {
		t.Fatalf("mailto = %s", mail)
	}
	u, _ := url.Parse(mail)
	if u.Query().Get("body") != "Bonjour & merci" {
		t.Fatalf("body not preserved: %s", mail)
	}

	wa, err := WhatsAppLink("+221 77 123-45-67", m)
	if err != nil {
		t.Fatalf("whatsapp: %v", err)
	}
	if !strings.HasPrefix(wa, "https://wa.me/221771234567?text=") {
		t.Fatalf("wa = %s", wa)
	}
	if wa2, _ := WhatsAppLink("00221771234567", m); !strings.HasPrefix(wa2, "https://wa.me/221771234567?") {
		t.Fatalf("00 prefix not stripped: %s", wa2)
	}

	if _, err := MailtoLink(" ", m); !errors.Is(err, ErrNoContact) {
		t.Fatalf("expected ErrNoContact, got %v", err)
	}
	if _, err := Link(ChannelWhatsApp, Contact{}, m); !errors.Is(err, ErrNoContact) {
		t.Fatalf("expected ErrNoContact, got %v", err)
	}
}

func TestParseChannel(t *testing.T) {
	for in, want := range map[string]Channel{"": ChannelEmail, "EMAIL": ChannelEmail, " whatsapp ": ChannelWhatsApp} {
		got, err := ParseChannel(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %s err=%v", in, got, err)
		}
	}
	if _, err := ParseChannel("sms"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel")
	}
}
