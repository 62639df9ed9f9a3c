// Package metrics 定义服务暴露给 Prometheus 的指标。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "offers_applied_total",
		Help:      "Offers attached to a cart ledger, by offer type and mode (manual/auto).",
	}, []string{"type", "mode"})

	OffersRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "offers_removed_total",
		Help:      "Ledger entries removed, by reason (user/expired/revoked).",
	}, []string{"reason"})

	OfferRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "offer_rejections_total",
		Help:      "Discount calculations that did not succeed, by error code.",
	}, []string{"code"})

	SweeperRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "sweeper_runs_total",
		Help:      "Expiry sweeper passes, by outcome.",
	}, []string{"outcome"})

	ExpiredOffersDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "expired_offers_deleted_total",
		Help:      "Offers physically deleted after their end date passed.",
	})

	CartsReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "sweeper_carts_updated_total",
		Help:      "Carts whose ledger was changed by the sweeper.",
	})

	Checkouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "checkouts_total",
		Help:      "Checkout attempts, by outcome.",
	}, []string{"outcome"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware 记录请求耗时。route 由调用方提供, 避免把路径参数打进标签。
func HTTPMiddleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			httpDuration.WithLabelValues(r.Method, route(r), strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
		})
	}
}
