// Package relay delivers per-device records to the remote collector. Delivery is best effort:
// failures are reported to the caller and never retried or queued.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EndpointEnvironment = "environment"
	EndpointHealth      = "health"
)

var ErrDelivery = errors.New("delivery failed")

var (
	deliveriesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scient_gateway_relay_deliveries_total",
		Help: "Records handed to the relay transport, by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
)

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(deliveriesCounter)
}

type Relay interface {
	// Deliver sends both records of the envelope. It returns the joined errors of every
	// record that could not be delivered.
	Deliver(ctx context.Context, env Envelope) error
}

// StatusError is returned when the collector answers with anything but 200.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s endpoint answered %d: %q", ErrDelivery, e.Endpoint, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrDelivery
}

func observe(endpoint string, err error) {
	outcome := "ok"

	if err != nil {
		outcome = "failed"
	}

	deliveriesCounter.WithLabelValues(endpoint, outcome).Inc()
}
