package interfaces

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/service/storefront/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	roleAdmin      = "admin"
)

// Identity 由上游网关认证后通过请求头传入
type Identity struct {
	UserID int64
	Admin  bool
}

type identityKey struct{}

func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// TraceContext 提取上游注入的追踪上下文
func TraceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Identify 解析身份头, 缺失或非法时视为匿名
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id Identity
		if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
			if uid, err := strconv.ParseInt(raw, 10, 64); err == nil && uid > 0 {
				id.UserID = uid
				id.Admin = strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), roleAdmin)
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFrom(r.Context()).UserID == 0 {
			writeError(w, r, domain.ErrAuthenticationRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFrom(r.Context())
		if id.UserID == 0 {
			writeError(w, r, domain.ErrAuthenticationRequired)
			return
		}
		if !id.Admin {
			writeJSON(w, http.StatusForbidden, errorBody{Success: false, Code: "ADMIN_REQUIRED", Error: "Admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
