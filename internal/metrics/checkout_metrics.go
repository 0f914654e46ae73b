package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики кассового ядра.
type CheckoutMetrics struct {
	// Счётчики финализаций
	finalizeStarted   prometheus.Counter
	finalizeCompleted prometheus.Counter
	finalizeFailed    prometheus.Counter

	// Счётчики отказов guard'ов
	stockConflicts prometheus.Counter
	creditDeclines prometheus.Counter

	// Гистограмма времени финализации
	finalizeDuration prometheus.Histogram

	// Счётчик мутаций корзины по операциям
	cartMutations *prometheus.CounterVec

	// Счётчики событий журнала и outbox
	journalEvents prometheus.Counter
	outboxEvents  prometheus.Counter
}

// NewCheckoutMetrics создаёт метрики в default registerer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		finalizeStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_finalize_started_total",
			Help: "Total number of sale finalize attempts started",
		}),
		finalizeCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_finalize_completed_total",
			Help: "Total number of sales committed successfully",
		}),
		finalizeFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_finalize_failed_total",
			Help: "Total number of finalize attempts rejected or failed",
		}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_stock_conflicts_total",
			Help: "Total number of stock guard rejections",
		}),
		creditDeclines: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_credit_declines_total",
			Help: "Total number of credit guard rejections",
		}),
		finalizeDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pos_finalize_duration_seconds",
			Help:    "Duration of finalize attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		cartMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_cart_mutations_total",
			Help: "Total number of cart mutations grouped by operation",
		}, []string{"op"}),
		journalEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_journal_events_total",
			Help: "Total number of checkout journal events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
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

// RecordFinalizeStarted увеличивает счётчик начатых финализаций.
func (m *CheckoutMetrics) RecordFinalizeStarted() {
	m.finalizeStarted.Inc()
}

// RecordFinalizeCompleted увеличивает счётчик успешных коммитов.
func (m *CheckoutMetrics) RecordFinalizeCompleted() {
	m.finalizeCompleted.Inc()
}

// RecordFinalizeFailed увеличивает счётчик неуспешных финализаций.
func (m *CheckoutMetrics) RecordFinalizeFailed() {
	m.finalizeFailed.Inc()
}

// RecordStockConflict увеличивает счётчик стоковых отказов.
func (m *CheckoutMetrics) RecordStockConflict() {
	m.stockConflicts.Inc()
}

// RecordCreditDecline увеличивает счётчик кредитных отказов.
func (m *CheckoutMetrics) RecordCreditDecline() {
	m.creditDeclines.Inc()
}

// RecordFinalizeDuration записывает длительность попытки финализации.
func (m *CheckoutMetrics) RecordFinalizeDuration(duration time.Duration) {
	m.finalizeDuration.Observe(duration.Seconds())
}

// RecordCartMutation увеличивает счётчик мутаций для операции op.
func (m *CheckoutMetrics) RecordCartMutation(op string) {
	m.cartMutations.WithLabelValues(op).Inc()
}

// RecordJournalEvent увеличивает счётчик событий журнала.
func (m *CheckoutMetrics) RecordJournalEvent() {
	m.journalEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
