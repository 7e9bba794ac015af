package auth

import (
	"net/http"
	"sort"
)

// Capability names an operation class the caller is allowed to perform.
type Capability string

const (
	// CapabilityOrdersManage allows reading any order and driving fulfilment transitions.
	CapabilityOrdersManage Capability = "orders:manage"
	// CapabilityOrdersCreateAdmin allows creating orders on behalf of customers.
	CapabilityOrdersCreateAdmin Capability = "orders:create_admin"
	// CapabilityOrdersPurge allows permanently deleting orders.
	CapabilityOrdersPurge Capability = "orders:purge"
	// CapabilityCatalogManage allows stock adjustments, delivery zones and promotions.
	CapabilityCatalogManage Capability = "catalog:manage"
)

var roleCapabilities = map[string][]Capability{
	RoleStaff: {CapabilityOrdersManage, CapabilityOrdersCreateAdmin},
	RoleAdmin: {CapabilityOrdersManage, CapabilityOrdersCreateAdmin, CapabilityOrdersPurge, CapabilityCatalogManage},
}

// Capabilities is an immutable set of capabilities.
type Capabilities struct {
	set map[Capability]struct{}
}

// CapabilitiesForRoles merges the capabilities granted by each role. Unknown
// roles and the plain user role grant nothing beyond access to the caller's
// own resources.
func CapabilitiesForRoles(roles ...string) Capabilities {
	set := make(map[Capability]struct{})
	for _, role := range roles {
		for _, capability := range roleCapabilities[normaliseRole(role)] {
			set[capability] = struct{}{}
		}
	}
	return Capabilities{set: set}
}

// Has reports whether the capability is present.
func (c Capabilities) Has(capability Capability) bool {
	_, ok := c.set[capability]
	return ok
}

// List returns the capabilities sorted by name.
func (c Capabilities) List() []Capability {
	out := make([]Capability, 0, len(c.set))
	for capability := range c.set {
		out = append(out, capability)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RequireCapability rejects requests whose identity lacks the capability. It
// must run after RequireFirebaseAuth.
func RequireCapability(capability Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if !identity.Capabilities().Has(capability) {
				respondAuthError(w, http.StatusForbidden, "insufficient_capability", "identity lacks "+string(capability))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
