// Package runtime provides environment/runtime detection helpers shared across the control plane.
package runtime

import (
	"os"
	"sync"
)

// strictIdentityModeOnce caches the strict identity mode check at startup.
var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict identity mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the process should fail closed on
// caller-identity and transport-security boundaries: refuse plaintext admin
// headers, require https base URLs for exchange connectors, and so on.
// It is true in production, or when STRICT_IDENTITY_MODE is explicitly set.
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		strictIdentityModeValue = Env() == Production || ParseBoolValue(os.Getenv("STRICT_IDENTITY_MODE"))
	})
	return strictIdentityModeValue
}
