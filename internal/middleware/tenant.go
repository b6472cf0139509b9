package middleware

import (
	"net/http"

	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/tenant"
)

// TenantHeader names the tenant whose store a request runs against.
const TenantHeader = "X-Tenant-ID"

// TenantMiddleware resolves X-Tenant-ID into the request context. Requests without the
// header pass through; a malformed header is rejected.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(TenantHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		t, err := tenant.New(raw)
		if err != nil {
			BadRequest(w, "%v", err)
			return
		}

		ctx := tenant.ContextWithTenant(r.Context(), t)
		l := logger.FromContext(ctx).With().Str("tenant_id", t.ID).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx, l)))
	})
}

// RequireTenant returns the request's tenant or writes a 400.
func RequireTenant(w http.ResponseWriter, r *http.Request) (tenant.Tenant, bool) {
	t, ok := tenant.FromContext(r.Context())
	if !ok {
		BadRequest(w, "%s header is required", TenantHeader)
		return tenant.Tenant{}, false
	}
	return t, true
}
