package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics содержит метрики обработки платежей и сверки стока.
type PaymentMetrics struct {
	// Счётчики исходов обработки платежа
	paymentsStarted   prometheus.Counter
	paymentsCompleted prometheus.Counter
	paymentsFailed    prometheus.Counter
	paymentsPending   prometheus.Counter

	// Гистограммы времени выполнения
	processDuration prometheus.Histogram
	gatewayDuration *prometheus.HistogramVec

	// Сверка статусов и стока
	statusChecks      *prometheus.CounterVec
	stockReconciled   prometheus.Counter
	stockSkipped      prometheus.Counter
	stockFailed       prometheus.Counter

	// Счётчики событий
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для платежей в обработке
	inFlight prometheus.Gauge
}

// NewPaymentMetrics создаёт метрики в default registry.
func NewPaymentMetrics() *PaymentMetrics {
	return newPaymentMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newPaymentMetricsWithRegisterer(registerer prometheus.Registerer) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PaymentMetrics{
		paymentsStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_payments_started_total",
			Help: "Total number of payment processing attempts started",
		}),
		paymentsCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_payments_completed_total",
			Help: "Total number of payments approved by the provider",
		}),
		paymentsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_payments_failed_total",
			Help: "Total number of payments declined or failed",
		}),
		paymentsPending: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_payments_pending_total",
			Help: "Total number of payments left pending by the provider",
		}),
		processDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "checkout_payment_process_duration_seconds",
			Help:    "Duration of the full payment processing flow in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		gatewayDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "checkout_gateway_call_duration_seconds",
			Help:    "Duration of provider calls in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"operation"}),
		statusChecks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_status_checks_total",
			Help: "Total number of status reconciliation runs grouped by result",
		}, []string{"result"}),
		stockReconciled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_stock_reconciled_total",
			Help: "Total number of successful stock decrements",
		}),
		stockSkipped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_stock_skipped_total",
			Help: "Total number of stock reconciliations skipped as already applied",
		}),
		stockFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_stock_failed_total",
			Help: "Total number of failed stock reconciliations",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_payments_in_flight",
			Help: "Number of payment processing flows currently running",
		}),
	}
}

// RecordPaymentStarted увеличивает счётчик запущенных платежей.
func (m *PaymentMetrics) RecordPaymentStarted() {
	m.paymentsStarted.Inc()
	m.inFlight.Inc()
}

// RecordPaymentFinished уменьшает счётчик платежей в обработке.
func (m *PaymentMetrics) RecordPaymentFinished() {
	m.inFlight.Dec()
}

// RecordPaymentCompleted увеличивает счётчик одобренных платежей.
func (m *PaymentMetrics) RecordPaymentCompleted() {
	m.paymentsCompleted.Inc()
}

// RecordPaymentFailed увеличивает счётчик неудачных платежей.
func (m *PaymentMetrics) RecordPaymentFailed() {
	m.paymentsFailed.Inc()
}

// RecordPaymentPending увеличивает счётчик платежей, оставшихся pending.
func (m *PaymentMetrics) RecordPaymentPending() {
	m.paymentsPending.Inc()
}

// RecordProcessDuration записывает длительность всей обработки платежа.
func (m *PaymentMetrics) RecordProcessDuration(duration time.Duration) {
	m.processDuration.Observe(duration.Seconds())
}

// RecordGatewayDuration записывает длительность обращения к провайдеру.
func (m *PaymentMetrics) RecordGatewayDuration(operation string, duration time.Duration) {
	m.gatewayDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStatusCheck фиксирует результат сверки статуса.
func (m *PaymentMetrics) RecordStatusCheck(result string) {
	m.statusChecks.WithLabelValues(result).Inc()
}

// RecordStockReconciled увеличивает счётчик успешных списаний стока.
func (m *PaymentMetrics) RecordStockReconciled() {
	m.stockReconciled.Inc()
}

// RecordStockSkipped увеличивает счётчик пропущенных (уже применённых) списаний.
func (m *PaymentMetrics) RecordStockSkipped() {
	m.stockSkipped.Inc()
}

// RecordStockFailed увеличивает счётчик неудачных списаний стока.
func (m *PaymentMetrics) RecordStockFailed() {
	m.stockFailed.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *PaymentMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *PaymentMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}
