package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leavedesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	providerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leavedesk_lemonsqueezy_requests_total",
			Help: "LemonSqueezy API calls by method, operation and outcome",
		},
		[]string{"method", "operation", "outcome"},
	)
	providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leavedesk_lemonsqueezy_request_duration_seconds",
			Help:    "LemonSqueezy API call duration including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "operation"},
	)
	providerRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leavedesk_lemonsqueezy_retries_total",
			Help: "LemonSqueezy transport failures that were retried",
		},
		[]string{"method", "operation"},
	)
	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leavedesk_webhook_events_total",
			Help: "Billing webhook events by name and outcome",
		},
		[]string{"event", "outcome"},
	)
	reconciledSeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leavedesk_reconciliation_archived_members_total",
			Help: "Memberships archived by renewal reconciliation",
		},
	)
	pendingChangesResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leavedesk_pending_changes_total",
			Help: "Subscriptions processed by the apply-pending job by outcome",
		},
		[]string{"outcome"},
	)
	membershipTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leavedesk_membership_transitions_total",
			Help: "Membership lifecycle transitions",
		},
		[]string{"action"},
	)
)

// Middleware records request duration per matched route.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			httpRequestDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the default registry.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

func RecordProviderRequest(method, operation, outcome string, duration time.Duration) {
	providerRequests.WithLabelValues(method, operation, outcome).Inc()
	providerRequestDuration.WithLabelValues(method, operation).Observe(duration.Seconds())
}

func RecordProviderRetry(method, operation string) {
	providerRetries.WithLabelValues(method, operation).Inc()
}

func RecordWebhookEvent(event, outcome string) {
	webhookEvents.WithLabelValues(event, outcome).Inc()
}

func RecordArchivedMembers(n int) {
	reconciledSeats.Add(float64(n))
}

func RecordPendingChanges(processed, failed int) {
	pendingChangesResults.WithLabelValues("processed").Add(float64(processed))
	pendingChangesResults.WithLabelValues("failed").Add(float64(failed))
}

func RecordMembershipTransition(action string) {
	membershipTransitions.WithLabelValues(action).Inc()
}
