package chi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/logger"
)

type tenantKey struct{}

// TenantMiddleware validates the {tenant} path parameter and stores it in the
// request context. The tenant is trusted as given: no authorization happens here.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := chi.URLParam(r, "tenant")
		if err := domain.ValidateTenant(tenant); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidTenant, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), tenantKey{}, tenant)
		ctx = logger.With(ctx, zap.String("tenant", tenant))
		logger.Annotate(ctx, zap.String("tenant", tenant))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantFromContext returns the tenant stored by TenantMiddleware, or "".
func TenantFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tenantKey{}).(string)
	return t
}
