// Package access implements admin gating shared by price stores and the aggregator.
package access

import (
	"oraclehub/internal/domain"
)

// Admin holds the privileged address and an optional pending candidate for the two-step handover.
type Admin struct {
	Current domain.Address
	Pending domain.Address
}

func New(admin domain.Address) Admin {
	return Admin{Current: admin}
}

// Require fails with Unauthorized unless caller is the current admin.
func (a Admin) Require(op string, caller domain.Address) error {
	if a.Current == "" || caller != a.Current {
		return domain.Errorf(op, domain.ErrUnauthorized, "caller %q is not admin", caller)
	}
	return nil
}

// Propose stores next as the pending admin; it takes effect once next calls Accept.
func (a *Admin) Propose(caller, next domain.Address) error {
	const op = "propose_admin"
	if err := a.Require(op, caller); err != nil {
		return err
	}
	if next == "" {
		return domain.Errorf(op, domain.ErrInvalidConfig, "empty admin address")
	}

	a.Pending = next
	return nil
}

// Accept commits the pending admin. Only the pending candidate may call it.
func (a *Admin) Accept(caller domain.Address) (prev domain.Address, err error) {
	const op = "accept_admin"
	if a.Pending == "" {
		return "", domain.E(op, domain.ErrNoPendingAdmin)
	}
	if caller != a.Pending {
		return "", domain.Errorf(op, domain.ErrUnauthorized, "caller %q is not the pending admin", caller)
	}

	prev = a.Current
	a.Current = a.Pending
	a.Pending = ""
	return prev, nil
}

// Set replaces the admin in one step, without acceptance by the new address.
func (a *Admin) Set(caller, next domain.Address) error {
	const op = "set_admin"
	if err := a.Require(op, caller); err != nil {
		return err
	}
	if next == "" {
		return domain.Errorf(op, domain.ErrInvalidConfig, "empty admin address")
	}

	a.Current = next
	a.Pending = ""
	return nil
}
