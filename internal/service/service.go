// Package service contains the business logic of the Busline trip engine.
// Services validate inputs, enforce business rules, and orchestrate repo calls
// inside bounded transactions. No SQL lives here: services depend on repo
// interfaces, and side effects leave through a Dispatcher after commit.
package service

import (
	"errors"
	"time"

	"github.com/pkordes/busline/internal/dispatch"
	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/repo"
)

// TxTimeout bounds the transaction of a single-trip operation.
const TxTimeout = 5 * time.Second

// BulkTxTimeout bounds the whole transaction of a bulk operation.
const BulkTxTimeout = 15 * time.Second

// Store is the persistence surface services need: repositories bound to the
// pool for plain reads, and bounded units of work. *repo.Store satisfies it.
type Store interface {
	repo.TxRunner
	Repos() repo.Repos
}

// Dispatcher accepts fire-and-forget side effects. Publish never blocks.
type Dispatcher interface {
	Publish(t dispatch.Task) bool
}

var _ Store = (*repo.Store)(nil)

// requireCompany rejects actors from another company.
func requireCompany(actor domain.Actor, trip domain.Trip) error {
	if actor.CompanyID != trip.CompanyID {
		return domain.ErrAuthorization
	}
	return nil
}

// requireAdmin rejects actors without the company admin role. Admins with a
// staff sub-role pass.
func requireAdmin(actor domain.Actor) error {
	if actor.Role != domain.RoleCompanyAdmin {
		return domain.ErrAuthorization
	}
	return nil
}

// itemFailure reports whether err is a per-item outcome of a bulk call rather
// than a failure of the whole transaction.
func itemFailure(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrValidation,
		domain.ErrVersionConflict,
		domain.ErrViewOnlyStatus,
		domain.ErrHasPaidBookings,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
