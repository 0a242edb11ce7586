package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/diewo77/go-immo/internal/inflight"
	"github.com/diewo77/go-immo/internal/models"
	"github.com/diewo77/go-immo/internal/store"
	"github.com/diewo77/go-immo/internal/timeutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordPaymentInput describes one payment. Nil PaidDate means today, nil
// PaidAmount means the expected amount, nil ExpectedVersion means the
// version read by Record itself.
type RecordPaymentInput struct {
	InstallmentID   uint
	PaidDate        *civil.Date
	PaidAmount      *decimal.Decimal
	PaymentMethod   string
	ReceiptNumber   string
	ExpectedVersion *int
	ActorID         uint
}

// PaymentRecorder moves installments from pending to paid.
type PaymentRecorder struct {
	store  store.InstallmentStore
	guard  inflight.Guard
	logger *log.Logger
	now    func() time.Time
}

func NewPaymentRecorder(st store.InstallmentStore, guard inflight.Guard, logger *log.Logger) *PaymentRecorder {
	if guard == nil {
		guard = inflight.NewMemoryGuard(30 * time.Second)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PaymentRecorder{store: st, guard: guard, logger: logger, now: timeutil.Now}
}

// Record applies defaults and persists the payment. The paid amount is not
// compared with the expected amount: partial and over payments are
// recorded as entered.
func (r *PaymentRecorder) Record(ctx context.Context, in RecordPaymentInput) (*models.Installment, error) {
	release, err := r.guard.Acquire(ctx, fmt.Sprintf("installment:%d", in.InstallmentID))
	if errors.Is(err, inflight.ErrBusy) {
		r.logger.Printf("payment: installment %d rejected, already in flight", in.InstallmentID)
		return nil, ErrPaymentInFlight
	}
	if err != nil {
		return nil, &PersistenceError{Op: "acquire payment guard", Err: err}
	}
	defer release()

	inst, err := r.store.GetInstallment(ctx, in.InstallmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInstallmentNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load installment", Err: err}
	}
	if inst.IsPaid() {
		return nil, ErrAlreadyPaid
	}

	now := r.now()
	paidDate := civil.DateOf(now)
	if in.PaidDate != nil {
		paidDate = *in.PaidDate
	}
	amount := inst.Amount
	if in.PaidAmount != nil {
		amount = *in.PaidAmount
	}
	version := inst.Version
	if in.ExpectedVersion != nil {
		version = *in.ExpectedVersion
	}
	paidAt := timeutil.Midnight(paidDate)
	receipt := strings.TrimSpace(in.ReceiptNumber)
	if receipt == "" {
		receipt = NewReceiptNumber(paidAt)
	}

	updated, err := r.store.MarkPaid(ctx, store.PaymentUpdate{
		ID:              inst.ID,
		ExpectedVersion: version,
		PaidDate:        paidAt,
		PaidAmount:      amount,
		PaymentMethod:   strings.TrimSpace(in.PaymentMethod),
		ReceiptNumber:   receipt,
		ActorID:         in.ActorID,
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrVersionConflict):
		return nil, r.conflict(ctx, inst.ID)
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrInstallmentNotFound
	default:
		r.logger.Printf("payment: installment %d not recorded: %v", inst.ID, err)
		return nil, &PersistenceError{Op: "record payment", Err: err}
	}

	if !amount.Equal(inst.Amount) {
		r.logger.Printf("payment: installment %d recorded %s of %s expected (receipt %s)",
			inst.ID, amount, inst.Amount, receipt)
	} else {
		r.logger.Printf("payment: installment %d recorded %s (receipt %s)", inst.ID, amount, receipt)
	}
	return updated, nil
}

// conflict tells an installment paid by someone else apart from one that
// was only modified.
func (r *PaymentRecorder) conflict(ctx context.Context, id uint) error {
	cur, err := r.store.GetInstallment(ctx, id)
	if err == nil && cur.IsPaid() {
		r.logger.Printf("payment: installment %d was paid concurrently", id)
		return ErrAlreadyPaid
	}
	r.logger.Printf("payment: installment %d version conflict", id)
	return ErrConcurrentUpdate
}

// NewReceiptNumber returns REC-YYYYMMDD-XXXXXXXX, dated with the paid date.
func NewReceiptNumber(at time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "REC-" + at.Format("20060102") + "-" + id[:8]
}
