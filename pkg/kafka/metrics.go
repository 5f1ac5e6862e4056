package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publish outcomes recorded on kafka_producer_messages_total.
const (
	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
)

var (
	producerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_messages_total",
			Help: "Kafka messages handed to the writer, by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	// Writes wait for all in-sync replicas, so latency sits well above a
	// plain network round trip.
	producerWriteSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_producer_write_seconds",
			Help:    "Time spent in a synchronous Kafka write, by topic",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"topic"},
	)
)

// observePublish records one write to topic that began at start.
func observePublish(topic string, start time.Time, err error) {
	producerWriteSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	outcome := outcomeDelivered
	if err != nil {
		outcome = outcomeFailed
	}
	producerMessages.WithLabelValues(topic, outcome).Inc()
}
