// Package echeance classifies sale installments by due-date proximity and
// payment state, and builds the list views (all, upcoming, late) on top of a
// single classifier.
package echeance

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/diewo77/go-immo/i18n"
	"github.com/diewo77/go-immo/internal/models"
)

// State is the display state of an installment.
type State string

const (
	StatePaid     State = "paid"
	StateOverdue  State = "overdue"
	StateDueToday State = "due_today"
	StateDueSoon  State = "due_soon"
	StatePending  State = "pending"
)

// Urgency tiers an unpaid, not yet overdue installment for the upcoming
// dashboard.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencySoon     Urgency = "soon"
	UrgencyNormal   Urgency = "normal"
)

const (
	DefaultSoonDays     = 7
	DefaultUpcomingDays = 30
	DefaultCriticalDays = 30
	criticalUrgencyDays = 3
)

// InvalidDateError reports a due date that cannot be interpreted. It points
// at bad upstream data; list views render the row with a placeholder.
type InvalidDateError struct {
	Value string
	Err   error
}

func (e *InvalidDateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid due date %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("invalid due date %q", e.Value)
}

func (e *InvalidDateError) Unwrap() error { return e.Err }

// ParseDueDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp,
// whose own calendar day is kept.
func ParseDueDate(s string) (civil.Date, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return civil.Date{}, &InvalidDateError{Value: s}
	}
	if d, err := civil.ParseDate(v); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return civil.Date{}, &InvalidDateError{Value: s, Err: err}
	}
	return civil.DateOf(t), nil
}

// Classification is the outcome of classifying one installment.
type Classification struct {
	State     State   `json:"state"`
	DaysLate  int     `json:"days_late,omitempty"`
	DaysUntil int     `json:"days_until,omitempty"`
	Urgency   Urgency `json:"urgency,omitempty"`
}

// Badge returns the French badge label.
func (c Classification) Badge() string {
	return c.BadgeIn("fr")
}

// BadgeIn returns the badge label in the given language.
func (c Classification) BadgeIn(lang string) string {
	switch c.State {
	case StatePaid:
		return i18n.T(lang, "badge_paid")
	case StateOverdue:
		return i18n.Tf(lang, "badge_overdue", c.DaysLate)
	case StateDueToday:
		return i18n.T(lang, "badge_due_today")
	case StateDueSoon:
		return i18n.Tf(lang, "badge_due_soon", c.DaysUntil)
	case StatePending:
		return i18n.T(lang, "badge_pending")
	}
	return "—"
}

// Classifier maps (now, due date, status) to a Classification. SoonDays is
// the inclusive horizon of the due_soon state; zero means DefaultSoonDays.
type Classifier struct {
	SoonDays int
}

// DefaultClassifier uses the 7-day due_soon horizon.
var DefaultClassifier = Classifier{SoonDays: DefaultSoonDays}

func (c Classifier) soonDays() int {
	if c.SoonDays <= 0 {
		return DefaultSoonDays
	}
	return c.SoonDays
}

// Classify compares calendar dates only: the time of day of now never
// changes the outcome, and a due date equal to now's date is always
// due_today. Paid installments are paid whatever their due date.
func (c Classifier) Classify(now time.Time, due civil.Date, status models.InstallmentStatus) (Classification, error) {
	if status == models.InstallmentPaid {
		return Classification{State: StatePaid}, nil
	}
	if !due.IsValid() {
		return Classification{}, &InvalidDateError{Value: due.String()}
	}
	today := civil.DateOf(now)
	diff := due.DaysSince(today)
	switch {
	case diff < 0:
		return Classification{State: StateOverdue, DaysLate: -diff}, nil
	case diff == 0:
		return Classification{State: StateDueToday, Urgency: UrgencyCritical}, nil
	case diff <= c.soonDays():
		return Classification{State: StateDueSoon, DaysUntil: diff, Urgency: urgencyFor(diff)}, nil
	default:
		return Classification{State: StatePending, DaysUntil: diff, Urgency: urgencyFor(diff)}, nil
	}
}

// ClassifyInstallment classifies a stored installment. A zero due date on an
// unpaid row is reported as an InvalidDateError.
func (c Classifier) ClassifyInstallment(now time.Time, inst *models.Installment) (Classification, error) {
	if inst.IsPaid() {
		return Classification{State: StatePaid}, nil
	}
	due, err := DueDay(inst)
	if err != nil {
		return Classification{}, err
	}
	return c.Classify(now, due, inst.Status)
}

// DueDay returns the calendar due date of a stored installment.
func DueDay(inst *models.Installment) (civil.Date, error) {
	if inst.DueDate.IsZero() {
		return civil.Date{}, &InvalidDateError{Value: ""}
	}
	d := civil.DateOf(inst.DueDate)
	if !d.IsValid() {
		return civil.Date{}, &InvalidDateError{Value: inst.DueDate.String()}
	}
	return d, nil
}

func urgencyFor(daysUntil int) Urgency {
	switch {
	case daysUntil <= criticalUrgencyDays:
		return UrgencyCritical
	case daysUntil <= DefaultSoonDays:
		return UrgencySoon
	default:
		return UrgencyNormal
	}
}
