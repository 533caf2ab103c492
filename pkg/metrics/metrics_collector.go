package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 对账指标
	webhookEventsTotal   *prometheus.CounterVec
	webhookDuration      *prometheus.HistogramVec
	checkoutTotal        *prometheus.CounterVec
	paymentTransitions   *prometheus.CounterVec
	refundsCreatedAmount *prometheus.CounterVec
	invoicesIssuedTotal  prometheus.Counter
}

var (
	defaultCollector *MetricsCollector
	once             sync.Once
)

// Default 返回全局收集器
// promauto 注册到默认 registry，重复注册会 panic，所以只创建一次
func Default() *MetricsCollector {
	once.Do(func() {
		defaultCollector = newMetricsCollector()
	})
	return defaultCollector
}

func newMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		webhookEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_webhook_events_total",
				Help: "Gateway webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),

		webhookDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_webhook_duration_seconds",
				Help:    "Webhook processing time in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"type"},
		),

		checkoutTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_requests_total",
				Help: "Checkout operations by step and result",
			},
			[]string{"step", "result"},
		),

		paymentTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_transitions_total",
				Help: "Applied payment status transitions",
			},
			[]string{"to", "source"},
		),

		refundsCreatedAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refunds_created_amount_minor_total",
				Help: "Sum of refund amounts requested, in minor currency units",
			},
			[]string{"currency"},
		),

		invoicesIssuedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "invoices_issued_total",
				Help: "Number of invoices issued",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordWebhook 记录 webhook 处理结果
func (m *MetricsCollector) RecordWebhook(eventType, outcome string, duration time.Duration) {
	m.webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	m.webhookDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordCheckout 记录结账步骤
func (m *MetricsCollector) RecordCheckout(step string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.checkoutTotal.WithLabelValues(step, result).Inc()
}

// RecordPaymentTransition 记录支付状态变更，source 为 webhook 或 confirm
func (m *MetricsCollector) RecordPaymentTransition(to, source string) {
	m.paymentTransitions.WithLabelValues(to, source).Inc()
}

// RecordRefundCreated 记录退款金额
func (m *MetricsCollector) RecordRefundCreated(currency string, amount int64) {
	m.refundsCreatedAmount.WithLabelValues(currency).Add(float64(amount))
}

// RecordInvoiceIssued 记录开票
func (m *MetricsCollector) RecordInvoiceIssued() {
	m.invoicesIssuedTotal.Inc()
}
