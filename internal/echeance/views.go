package echeance

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/diewo77/go-immo/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Entry is one installment with its classification. Err is set when the
// installment could not be classified; the row is still listed.
type Entry struct {
	Installment *models.Installment `json:"installment"`
	Class       Classification      `json:"classification"`
	Err         error               `json:"-"`
	due         civil.Date
}

// Badge returns the badge label, or a dash for rows that failed to classify.
func (e Entry) Badge() string {
	return e.BadgeIn("fr")
}

// BadgeIn is Badge in the given language.
func (e Entry) BadgeIn(lang string) string {
	if e.Err != nil {
		return "—"
	}
	return e.Class.BadgeIn(lang)
}

// DueLabel formats the due date for display, a dash when invalid.
func (e Entry) DueLabel() string {
	if !e.due.IsValid() {
		return "—"
	}
	return fmt.Sprintf("%02d/%02d/%04d", e.due.Day, int(e.due.Month), e.due.Year)
}

func (e Entry) hasDue() bool { return e.due.IsValid() }

// Classify builds entries for items. Entries point into items.
func Classify(c Classifier, now time.Time, items []models.Installment) []Entry {
	out := make([]Entry, 0, len(items))
	for i := range items {
		inst := &items[i]
		e := Entry{Installment: inst}
		if d, err := DueDay(inst); err == nil {
			e.due = d
		}
		e.Class, e.Err = c.ClassifyInstallment(now, inst)
		out = append(out, e)
	}
	return out
}

// Month selects one calendar month; the zero value selects every month.
type Month struct {
	Year  int
	Month time.Month
}

// IsZero reports whether no month is selected.
func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// ParseMonth parses "YYYY-MM". An empty string yields the zero Month.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Month{}, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, &InvalidDateError{Value: s, Err: err}
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// Query narrows the All view. Text matches the property title, buyer name,
// buyer phone or the amount; matching ignores case and accents.
type Query struct {
	Text  string
	Month Month
}

// All returns the entries matching q sorted by due date, oldest first.
// Rows without a valid due date sort last and are dropped by a month filter.
func All(entries []Entry, q Query) []Entry {
	needle := fold(q.Text)
	digits := phoneDigits(q.Text)
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !q.Month.IsZero() {
			if !e.hasDue() || e.due.Year != q.Month.Year || e.due.Month != q.Month.Month {
				continue
			}
		}
		if needle != "" && !matches(e.Installment, needle, digits) {
			continue
		}
		out = append(out, e)
	}
	sortByDue(out)
	return out
}

// Upcoming keeps pending entries due in [today, today+windowDays).
func Upcoming(entries []Entry, now time.Time, windowDays int) []Entry {
	if windowDays <= 0 {
		windowDays = DefaultUpcomingDays
	}
	today := civil.DateOf(now)
	limit := today.AddDays(windowDays)
	out := make([]Entry, 0)
	for _, e := range entries {
		if e.Installment.IsPaid() || !e.hasDue() {
			continue
		}
		if e.due.Before(today) || !e.due.Before(limit) {
			continue
		}
		out = append(out, e)
	}
	sortByDue(out)
	return out
}

// Late keeps pending entries due strictly before today, oldest first.
func Late(entries []Entry, now time.Time) []Entry {
	today := civil.DateOf(now)
	out := make([]Entry, 0)
	for _, e := range entries {
		if e.Installment.IsPaid() || !e.hasDue() {
			continue
		}
		if !e.due.Before(today) {
			continue
		}
		out = append(out, e)
	}
	sortByDue(out)
	return out
}

// LateStats aggregates the late view.
type LateStats struct {
	Total         int             `json:"total"`
	TotalOwed     decimal.Decimal `json:"total_owed"`
	AvgDaysLate   int             `json:"avg_days_late"`
	CriticalCount int             `json:"critical_count"`
}

// ComputeLateStats sums late entries. An entry is critical when it is more
// than criticalDays late; zero means DefaultCriticalDays.
func ComputeLateStats(entries []Entry, criticalDays int) LateStats {
	if criticalDays <= 0 {
		criticalDays = DefaultCriticalDays
	}
	stats := LateStats{TotalOwed: decimal.Zero}
	sum := 0
	for _, e := range entries {
		stats.Total++
		if e.Installment != nil {
			stats.TotalOwed = stats.TotalOwed.Add(e.Installment.Amount)
		}
		sum += e.Class.DaysLate
		if e.Class.DaysLate > criticalDays {
			stats.CriticalCount++
		}
	}
	if stats.Total > 0 {
		stats.AvgDaysLate = int(math.Round(float64(sum) / float64(stats.Total)))
	}
	return stats
}

// Views bundles the thresholds shared by the three list views.
type Views struct {
	Classifier   Classifier
	UpcomingDays int
	CriticalDays int
}

// DefaultViews uses the 7/30/30 day thresholds.
var DefaultViews = Views{
	Classifier:   DefaultClassifier,
	UpcomingDays: DefaultUpcomingDays,
	CriticalDays: DefaultCriticalDays,
}

// All classifies items and applies the All view.
func (v Views) All(now time.Time, items []models.Installment, q Query) []Entry {
	return All(Classify(v.Classifier, now, items), q)
}

// Upcoming classifies items and applies the Upcoming view.
func (v Views) Upcoming(now time.Time, items []models.Installment) []Entry {
	return Upcoming(Classify(v.Classifier, now, items), now, v.UpcomingDays)
}

// Late classifies items, applies the Late view and computes its statistics.
func (v Views) Late(now time.Time, items []models.Installment) ([]Entry, LateStats) {
	late := Late(Classify(v.Classifier, now, items), now)
	return late, ComputeLateStats(late, v.CriticalDays)
}

func sortByDue(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.hasDue() != b.hasDue() {
			return a.hasDue()
		}
		return a.due.Before(b.due)
	})
}

func matches(inst *models.Installment, needle, digits string) bool {
	if inst == nil {
		return false
	}
	fields := []string{inst.PropertyTitle(), inst.BuyerName(), inst.BuyerPhone(), inst.Amount.String()}
	for _, f := range fields {
		if strings.Contains(fold(f), needle) {
			return true
		}
	}
	if digits != "" {
		if phone := onlyDigits(inst.BuyerPhone()); phone != "" && strings.Contains(phone, digits) {
			return true
		}
	}
	return false
}

// fold lowercases s and strips combining accents. Transformer chains carry
// state, so one is built per call.
func fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// phoneDigits returns the digits of a query that looks like a phone number,
// empty when the query contains letters.
func phoneDigits(q string) string {
	for _, r := range q {
		if unicode.IsLetter(r) {
			return ""
		}
	}
	return onlyDigits(q)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
