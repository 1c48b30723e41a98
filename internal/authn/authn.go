// Package authn implements the dual-token admin authenticator (C2): two
// rotatable static tokens behind a mutex, with constant-time comparison and
// an optional development bypass.
package authn

import (
	"crypto/subtle"
	"fmt"
	"sync"
)

// Slot names the active token slot after a rotation.
type Slot string

const (
	SlotPrimary   Slot = "primary"
	SlotSecondary Slot = "secondary"
)

// Authenticator holds the two admin tokens and which one rotation last
// activated (informational only — both slots always admit).
type Authenticator struct {
	mu         sync.Mutex
	primary    string
	secondary  string
	active     Slot
	bypassAuth bool
}

// New constructs an Authenticator. bypass, when true, admits every request
// regardless of token (development only, per ADMIN_AUTH_DISABLED).
func New(primary, secondary string, bypass bool) *Authenticator {
	return &Authenticator{
		primary:    primary,
		secondary:  secondary,
		active:     SlotPrimary,
		bypassAuth: bypass,
	}
}

// Admit reports whether token is accepted: either the bypass flag is set,
// or token constant-time-equals the primary or secondary token.
func (a *Authenticator) Admit(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bypassAuth {
		return true
	}
	if token == "" {
		return false
	}
	return constEq(token, a.primary) || constEq(token, a.secondary)
}

func constEq(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RotateRequest is the payload accepted by the rotation endpoint. Nil
// pointers leave the corresponding token untouched.
type RotateRequest struct {
	Primary   *string `json:"primary,omitempty"`
	Secondary *string `json:"secondary,omitempty"`
	Activate  *string `json:"activate,omitempty"`
}

// Rotate atomically applies the requested token changes and active-slot
// marker under the authenticator's mutex.
func (a *Authenticator) Rotate(req RotateRequest) (Slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if req.Primary != nil {
		a.primary = *req.Primary
	}
	if req.Secondary != nil {
		a.secondary = *req.Secondary
	}
	if req.Activate != nil {
		switch Slot(*req.Activate) {
		case SlotPrimary:
			a.active = SlotPrimary
		case SlotSecondary:
			a.active = SlotSecondary
		default:
			return a.active, fmt.Errorf("authn: invalid activate slot %q", *req.Activate)
		}
	}
	return a.active, nil
}

// Active returns which slot was last marked active by a rotation.
func (a *Authenticator) Active() Slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// MaskedAudit renders req with secret fields replaced by "***" so it can be
// safely written to the audit log, per C3.
func MaskedAudit(req RotateRequest) map[string]interface{} {
	out := map[string]interface{}{}
	if req.Primary != nil {
		out["primary"] = "***"
	}
	if req.Secondary != nil {
		out["secondary"] = "***"
	}
	if req.Activate != nil {
		out["activate"] = *req.Activate
	}
	return out
}
