package shared

import (
	"context"
	"net/http"
	"strings"
)

// DefaultTenant is used when a request carries no tenant marker.
const DefaultTenant = "demo-tenant"

const (
	tenantHeader = "X-Tenant-ID"
	tenantCookie = "tenantId"
)

type tenantContextKey struct{}

// ContextWithTenant stores the tenant id in context.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant id from context, falling back to DefaultTenant.
func TenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantContextKey{}).(string)
	if tenant == "" {
		return DefaultTenant
	}
	return tenant
}

// TenantMiddleware resolves the tenant from the X-Tenant-ID header or the tenantId cookie.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(tenantHeader))
		if tenant == "" {
			if c, err := r.Cookie(tenantCookie); err == nil {
				tenant = strings.TrimSpace(c.Value)
			}
		}
		if tenant == "" {
			tenant = DefaultTenant
		}
		next.ServeHTTP(w, r.WithContext(ContextWithTenant(r.Context(), tenant)))
	})
}
