// Package services – domain metrics
//
// Prometheus counters for lifecycle transitions and sent messages. They are
// incremented only after the owning transaction commits, so a rolled back
// operation is never counted.
package services

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

var (
	// puzzleTransitions counts committed lifecycle transitions by event.
	puzzleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puzzle_transitions_total",
			Help: "Committed puzzle lifecycle transitions.",
		},
		[]string{"event"},
	)

	// messagesSent counts committed messages by kind (user|automated).
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Committed messages by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(puzzleTransitions, messagesSent)
}

func countTransition(ev domain.Event) {
	puzzleTransitions.WithLabelValues(string(ev)).Inc()
}

func countMessage(m *domain.Message) {
	kind := "user"
	if m.IsAutomated {
		kind = "automated"
	}
	messagesSent.WithLabelValues(kind).Inc()
}
