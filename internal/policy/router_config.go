package policy

import (
	"log"
	"time"

	"github.com/diewo77/go-immo/internal/config"
	"github.com/diewo77/go-immo/internal/echeance"
	"github.com/diewo77/go-immo/internal/handlers"
	"github.com/diewo77/go-immo/internal/inflight"
	"github.com/diewo77/go-immo/internal/services"
	"github.com/diewo77/go-immo/internal/store"
	"gorm.io/gorm"
)

// Resource types guarded by ownership.
const (
	ResourceEcheance        = "echeance"
	ResourceReceiptTemplate = "receipt_template"
)

// RouterConfig holds the configured handlers and the authorization gate.
type RouterConfig struct {
	AuthGate *AuthGate

	AuthHandler            *handlers.AuthHandler
	EcheanceHandler        *handlers.EcheanceHandler
	ReceiptTemplateHandler *handlers.ReceiptTemplateHandler
	TeamHandler            *handlers.TeamHandler

	Store    *store.GormStore
	Recorder *services.PaymentRecorder
}

// NewRouterConfig wires the application. guard may be nil, in which case
// an in-process guard with cfg.Schedule.InflightTTL is used.
func NewRouterConfig(db *gorm.DB, cfg *config.Config, guard inflight.Guard) *RouterConfig {
	authGate := NewAuthGate(db, 5*time.Minute)

	st := store.NewGormStore(db)
	ownership := NewAdminBypassPolicy(NewOwnershipPolicy(st), authGate.Gate.IsSuperAdmin)
	authGate.RegisterPolicy(ResourceEcheance, ownership)
	authGate.RegisterPolicy(ResourceReceiptTemplate, ownership)

	if guard == nil {
		guard = inflight.NewMemoryGuard(cfg.Schedule.InflightTTL)
	}
	recorder := services.NewPaymentRecorder(st, guard, log.Default())

	return &RouterConfig{
		AuthGate:    authGate,
		AuthHandler: handlers.NewAuthHandler(db),
		EcheanceHandler: handlers.NewEcheanceHandler(st, recorder, authGate, handlers.EcheanceOptions{
			Views: echeance.Views{
				Classifier:   echeance.Classifier{SoonDays: cfg.Schedule.SoonDays},
				UpcomingDays: cfg.Schedule.UpcomingDays,
				CriticalDays: cfg.Schedule.CriticalDays,
			},
			Agency: cfg.App.AgencyName,
		}),
		ReceiptTemplateHandler: handlers.NewReceiptTemplateHandler(st, authGate),
		TeamHandler:            handlers.NewTeamHandler(db, st, authGate),
		Store:                  st,
		Recorder:               recorder,
	}
}
