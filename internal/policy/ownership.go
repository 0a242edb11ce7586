package policy

import (
	"context"
	"log"

	"github.com/diewo77/go-immo/gate"
)

// Ownable resources carry the ID of the agency owner they belong to.
type Ownable interface {
	GetUserID() uint
}

// AgencyResolver maps a user to the agency owner their data is stored under.
type AgencyResolver interface {
	AgencyOf(ctx context.Context, userID uint) (uint, error)
}

// OwnershipPolicy allows a user to act on resources of their agency.
// Resources that do not implement Ownable are denied.
type OwnershipPolicy struct {
	agencies AgencyResolver
}

// NewOwnershipPolicy compares owners with the user's agency. A nil
// resolver treats every user as their own agency.
func NewOwnershipPolicy(agencies AgencyResolver) *OwnershipPolicy {
	return &OwnershipPolicy{agencies: agencies}
}

func (p *OwnershipPolicy) Can(ctx context.Context, userID uint, _ gate.Action, resource any) bool {
	if resource == nil {
		return true
	}
	ownable, ok := resource.(Ownable)
	if !ok {
		return false
	}
	agency := userID
	if p.agencies != nil {
		a, err := p.agencies.AgencyOf(ctx, userID)
		if err != nil {
			log.Printf("ownership: agency of user %d: %v", userID, err)
			return false
		}
		agency = a
	}
	return ownable.GetUserID() == agency
}

// AdminBypassPolicy lets admins through and defers to inner for everyone else.
type AdminBypassPolicy struct {
	inner   gate.Policy[uint]
	isAdmin func(ctx context.Context, userID uint) bool
}

func NewAdminBypassPolicy(inner gate.Policy[uint], isAdmin func(ctx context.Context, userID uint) bool) *AdminBypassPolicy {
	return &AdminBypassPolicy{inner: inner, isAdmin: isAdmin}
}

func (p *AdminBypassPolicy) Can(ctx context.Context, userID uint, action gate.Action, resource any) bool {
	if p.isAdmin(ctx, userID) {
		return true
	}
	return p.inner.Can(ctx, userID, action, resource)
}
