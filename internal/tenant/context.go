package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Tenant identifies the isolated data store an operation runs against.
// It is passed explicitly to every service call.
type Tenant struct {
	ID string
}

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,63}$`)

// New validates id and returns the tenant.
func New(id string) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, fmt.Errorf("tenant id is required")
	}
	if !tenantIDPattern.MatchString(id) {
		return Tenant{}, fmt.Errorf("tenant id %q contains unsupported characters", id)
	}
	return Tenant{ID: id}, nil
}

func (t Tenant) String() string { return t.ID }

type contextKey string

const tenantKey contextKey = "tenant"

// ContextWithTenant returns a context carrying the tenant resolved by the HTTP layer.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantKey, t)
}

// FromContext retrieves the tenant placed by ContextWithTenant, if any.
func FromContext(ctx context.Context) (Tenant, bool) {
	if ctx == nil {
		return Tenant{}, false
	}
	t, ok := ctx.Value(tenantKey).(Tenant)
	if !ok || t.ID == "" {
		return Tenant{}, false
	}
	return t, true
}
