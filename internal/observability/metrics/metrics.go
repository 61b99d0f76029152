package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ChatMetrics exposes counters/histograms for the conversation engine.
type ChatMetrics struct {
	intentsTotal     *prometheus.CounterVec
	questionsTotal   *prometheus.CounterVec
	generationsTotal *prometheus.CounterVec
	cleanupRuns      *prometheus.CounterVec
	cleanupDeleted   prometheus.Counter
	llmCalls         *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maison",
			Subsystem: "chat",
			Name:      "intents_total",
			Help:      "Classified intents of inbound chat messages",
		}, []string{"intent"}),
		questionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maison",
			Subsystem: "chat",
			Name:      "question_workflow_total",
			Help:      "Outcomes of the buyer/seller question workflow",
		}, []string{"outcome"}),
		generationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maison",
			Subsystem: "chat",
			Name:      "specialist_responses_total",
			Help:      "Specialist responses by handler and whether the canned fallback was used",
		}, []string{"handler", "fallback"}),
		cleanupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maison",
			Subsystem: "sessions",
			Name:      "cleanup_runs_total",
			Help:      "Session cleanup runs",
		}, []string{"status"}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maison",
			Subsystem: "sessions",
			Name:      "cleanup_deleted_total",
			Help:      "Expired general conversations deleted by cleanup",
		}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maison",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM provider calls by outcome",
		}, []string{"provider", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maison",
			Subsystem: "llm",
			Name:      "call_latency_seconds",
			Help:      "Latency of LLM provider calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"provider"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.intentsTotal, m.questionsTotal, m.generationsTotal,
		m.cleanupRuns, m.cleanupDeleted, m.llmCalls, m.llmLatency)
	return m
}

func (m *ChatMetrics) ObserveIntent(intent string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(intent).Inc()
}

func (m *ChatMetrics) ObserveQuestion(outcome string) {
	if m == nil {
		return
	}
	m.questionsTotal.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObserveGeneration(handler string, fallback bool) {
	if m == nil {
		return
	}
	label := "false"
	if fallback {
		label = "true"
	}
	m.generationsTotal.WithLabelValues(handler, label).Inc()
}

func (m *ChatMetrics) ObserveCleanup(deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.cleanupRuns.WithLabelValues("error").Inc()
		return
	}
	m.cleanupRuns.WithLabelValues("ok").Inc()
	m.cleanupDeleted.Add(float64(deleted))
}

func (m *ChatMetrics) ObserveLLMCall(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(provider, outcome).Inc()
	m.llmLatency.WithLabelValues(provider).Observe(duration.Seconds())
}
