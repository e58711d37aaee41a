package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	verdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "styx_verdicts_total",
		Help: "Total number of admission verdicts, labelled by action",
	}, []string{"action"})
	eventsIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "styx_events_ingested_total",
		Help: "Total number of verdict events persisted by the pipeline",
	})
	ingestRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "styx_ingest_retries_total",
		Help: "Total number of ingest attempts that were retried",
	})
	deadLettersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "styx_dead_letters_total",
		Help: "Total number of verdict events routed to the dead letter table",
	})
	recomputesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "styx_recomputes_total",
		Help: "Total number of case metric recomputes",
	})
	materializationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "styx_materializations_total",
		Help: "Total number of case snapshot materializations",
	})
	challengeVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "styx_challenge_verifications_total",
		Help: "Total number of challenge verification attempts, labelled by result",
	}, []string{"result"})
	actorStates = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "styx_actor_states",
		Help: "Number of live per-key admission actor states",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		verdictsTotal,
		eventsIngestedTotal,
		ingestRetriesTotal,
		deadLettersTotal,
		recomputesTotal,
		materializationsTotal,
		challengeVerifications,
		actorStates,
	)
}

// IncVerdict increments the verdict counter for an action.
func IncVerdict(action string) { verdictsTotal.WithLabelValues(action).Inc() }

// IncEventIngested increments the persisted events counter.
func IncEventIngested() { eventsIngestedTotal.Inc() }

// IncIngestRetry increments the retried ingest attempts counter.
func IncIngestRetry() { ingestRetriesTotal.Inc() }

// IncDeadLetter increments the dead letter counter.
func IncDeadLetter() { deadLettersTotal.Inc() }

// IncRecompute increments the recompute counter.
func IncRecompute() { recomputesTotal.Inc() }

// IncMaterialization increments the materialization counter.
func IncMaterialization() { materializationsTotal.Inc() }

// IncChallengeVerification increments the verification counter for a result.
func IncChallengeVerification(result string) {
	challengeVerifications.WithLabelValues(result).Inc()
}

// SetActorStates records the current number of live actor states.
func SetActorStates(n int) { actorStates.Set(float64(n)) }
