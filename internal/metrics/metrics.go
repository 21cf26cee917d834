package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	USSDTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuitora_ussd_turns_total",
			Help: "USSD callbacks by outcome",
		},
		[]string{"outcome"}, // continue|completed|invalid_request|error
	)

	LookupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tuitora_ussd_lookup_failures_total",
			Help: "Backing-data lookups that failed during a USSD turn",
		},
	)

	SessionWriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuitora_session_write_failures_total",
			Help: "Best-effort session writes that failed, by sink",
		},
		[]string{"sink"}, // redis|clickhouse
	)

	SMSResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuitora_sms_results_total",
			Help: "Per-recipient SMS send results",
		},
		[]string{"result"}, // sent|failed|invalid
	)

	BroadcastTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuitora_broadcast_messages_total",
			Help: "Broadcast message lifecycle by stage",
		},
		[]string{"stage"}, // queued|sent|failed|delivered
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuitora_provider_callbacks_total",
			Help: "Provider callbacks received, by kind",
		},
		[]string{"kind"}, // delivery_report|incoming_sms
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once; later calls are no-ops so the
// server and workers can both call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			USSDTurnsTotal,
			LookupFailuresTotal,
			SessionWriteFailuresTotal,
			SMSResultsTotal,
			BroadcastTotal,
			CallbacksTotal,
		)
	})
}
