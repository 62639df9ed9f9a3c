package interfaces

import (
	"encoding/json"
	"net/http"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/storefront/domain"

	"github.com/pkg/errors"
)

type errorBody struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Warn().Err(err).Msg("failed to encode response")
	}
}

// statusFor 按错误类别映射状态码
func statusFor(err *domain.Error) int {
	if errors.Is(err, domain.ErrAuthenticationRequired) {
		return http.StatusUnauthorized
	}
	switch err.Kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPolicyViolation:
		return http.StatusConflict
	case domain.KindPaymentFailure:
		return http.StatusPaymentRequired
	case domain.KindInactive, domain.KindExpired, domain.KindIneligibleCart,
		domain.KindEmptyCart, domain.KindInvalidConfiguration, domain.KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError 业务错误原样返回消息, 其他错误只返回通用提示
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if domainErr, ok := domain.AsError(err); ok {
		writeJSON(w, statusFor(domainErr), errorBody{Code: domainErr.Code, Error: domainErr.Message})
		return
	}
	logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL_ERROR", Error: "Internal server error"})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidRequest.WithMessage("Invalid request body")
	}
	return nil
}
