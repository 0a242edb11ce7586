package echeance

import (
	"testing"
	"time"

	"github.com/diewo77/go-immo/internal/models"
	"github.com/shopspring/decimal"
)

func inst(id uint, due time.Time, status models.InstallmentStatus, amount int64) models.Installment {
	i := models.Installment{
		SaleID:  1,
		Number:  int(id),
		DueDate: due,
		Amount:  decimal.NewFromInt(amount),
		Status:  status,
	}
	i.ID = id
	return i
}

func withSale(i models.Installment, title, buyer, phone string) models.Installment {
	i.Sale = &models.Sale{
		Property: &models.PropertyListing{Title: title},
		Buyer:    &models.Buyer{Name: buyer, Phone: phone},
	}
	return i
}

func ids(entries []Entry) []uint {
	out := make([]uint, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Installment.ID)
	}
	return out
}

func sameIDs(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var today = time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

func dueIn(days int) time.Time {
	return time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}

func TestUpcomingWindow(t *testing.T) {
	items := []models.Installment{
		inst(1, dueIn(29), models.InstallmentPending, 100),
		inst(2, dueIn(0), models.InstallmentPending, 100),
		inst(3, dueIn(31), models.InstallmentPending, 100),
		inst(4, dueIn(30), models.InstallmentPending, 100),
		inst(5, dueIn(-1), models.InstallmentPending, 100),
		inst(6, dueIn(5), models.InstallmentPaid, 100),
	}
	got := DefaultViews.Upcoming(today, items)
	if want := []uint{2, 1}; !sameIDs(ids(got), want) {
		t.Fatalf("upcoming = %v, want %v", ids(got), want)
	}
	if got[0].Class.State != StateDueToday {
		t.Fatalf("expected due_today first, got %s", got[0].Class.State)
	}
}

func TestLateView(t *testing.T) {
	items := []models.Installment{
		inst(1, dueIn(-1), models.InstallmentPending, 100),
		inst(2, dueIn(0), models.InstallmentPending, 100),
		inst(3, dueIn(-10), models.InstallmentPaid, 100),
		inst(4, dueIn(-20), models.InstallmentPending, 100),
	}
	got, stats := DefaultViews.Late(today, items)
	if want := []uint{4, 1}; !sameIDs(ids(got), want) {
		t.Fatalf("late = %v, want %v", ids(got), want)
	}
	if got[1].Class.DaysLate != 1 {
		t.Fatalf("expected 1 day late, got %d", got[1].Class.DaysLate)
	}
	if stats.Total != 2 || !stats.TotalOwed.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestLateStats(t *testing.T) {
	items := []models.Installment{
		inst(1, dueIn(-5), models.InstallmentPending, 1000),
		inst(2, dueIn(-40), models.InstallmentPending, 2000),
		inst(3, dueIn(-10), models.InstallmentPending, 3000),
	}
	_, stats := DefaultViews.Late(today, items)
	if stats.Total != 3 || stats.AvgDaysLate != 18 || stats.CriticalCount != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !stats.TotalOwed.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("total owed = %s", stats.TotalOwed)
	}

	empty := ComputeLateStats(nil, 0)
	if empty.Total != 0 || empty.AvgDaysLate != 0 || !empty.TotalOwed.IsZero() {
		t.Fatalf("empty stats = %+v", empty)
	}
}

func TestAllSearch(t *testing.T) {
	items := []models.Installment{
		withSale(inst(1, dueIn(3), models.InstallmentPending, 850000), "Villa Ngor", "Aïssatou Diop", "+221 77 123 45 67"),
		withSale(inst(2, dueIn(-2), models.InstallmentPending, 500000), "Terrain Saly", "Moussa Fall", "+221 70 000 00 00"),
		withSale(inst(3, dueIn(40), models.InstallmentPaid, 250000), "Appartement Plateau", "Jean Élie", "06 11 22 33 44"),
	}
	cases := []struct {
		name string
		q    Query
		want []uint
	}{
		{"empty query keeps all sorted by due", Query{}, []uint{2, 1, 3}},
		{"title", Query{Text: "villa"}, []uint{1}},
		{"buyer without accents", Query{Text: "aissatou"}, []uint{1}},
		{"buyer with accents", Query{Text: "ÉLIE"}, []uint{3}},
		{"phone digits", Query{Text: "77 123"}, []uint{1}},
		{"phone compact", Query{Text: "0611"}, []uint{3}},
		{"amount", Query{Text: "500000"}, []uint{2}},
		{"no match", Query{Text: "zzz"}, []uint{}},
		{"month", Query{Month: Month{Year: 2024, Month: time.June}}, []uint{2, 1}},
		{"month and text", Query{Text: "saly", Month: Month{Year: 2024, Month: time.June}}, []uint{2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DefaultViews.All(today, items, tc.q)
			if !sameIDs(ids(got), tc.want) {
				t.Fatalf("got %v want %v", ids(got), tc.want)
			}
		})
	}
}

func TestInvalidRowIsNotFatal(t *testing.T) {
	items := []models.Installment{
		inst(1, time.Time{}, models.InstallmentPending, 100),
		inst(2, dueIn(1), models.InstallmentPending, 100),
	}
	all := DefaultViews.All(today, items, Query{})
	if want := []uint{2, 1}; !sameIDs(ids(all), want) {
		t.Fatalf("all = %v, want %v", ids(all), want)
	}
	bad := all[1]
	if bad.Err == nil || bad.Badge() != "—" || bad.DueLabel() != "—" {
		t.Fatalf("expected placeholder row, got badge=%q due=%q err=%v", bad.Badge(), bad.DueLabel(), bad.Err)
	}
	if all[0].DueLabel() != "11/06/2024" {
		t.Fatalf("due label = %q", all[0].DueLabel())
	}
	if len(DefaultViews.Upcoming(today, items)) != 1 {
		t.Fatalf("invalid row must not appear in upcoming")
	}
	if late, _ := DefaultViews.Late(today, items); len(late) != 0 {
		t.Fatalf("invalid row must not appear in late")
	}
	if got := DefaultViews.All(today, items, Query{Month: Month{Year: 2024, Month: time.June}}); !sameIDs(ids(got), []uint{2}) {
		t.Fatalf("month filter should drop invalid rows, got %v", ids(got))
	}
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2024-02")
	if err != nil || m.Year != 2024 || m.Month != time.February || m.String() != "2024-02" {
		t.Fatalf("got %+v err=%v", m, err)
	}
	if m, err := ParseMonth(""); err != nil || !m.IsZero() {
		t.Fatalf("empty should be zero month")
	}
	if _, err := ParseMonth("02/2024"); err == nil {
		t.Fatalf("expected error")
	}
}
