package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scient-labs/scient-gateway/device"
)

type Dialer interface {
	Dial(ctx context.Context, h device.Handle) (device.Conn, error)
}

// Session reads telemetry from one device over a fresh connection per call.
type Session struct {
	dialer  Dialer
	model   device.Model
	timeout time.Duration
}

// NewSession returns a session bounding every read (connect, discovery and read) by timeout.
// A zero timeout leaves reads unbounded.
func NewSession(d Dialer, m device.Model, timeout time.Duration) *Session {
	return &Session{
		dialer:  d,
		model:   m,
		timeout: timeout,
	}
}

type readResult struct {
	reading device.Reading
	err     error
}

// ReadTelemetry connects to the device, reads and parses its telemetry and releases the
// connection exactly once, whatever the outcome.
func (s *Session) ReadTelemetry(parentCtx context.Context, h device.Handle) (r device.Reading, err error) {
	ctx, cancel := parentCtx, func() {}

	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, s.timeout)
	}

	defer cancel()

	conn, err := s.dialer.Dial(ctx, h)

	if err != nil {
		return r, fmt.Errorf("%w: %w", device.ErrConnect, err)
	}

	defer func() {
		if err := conn.CancelConnection(); err != nil {
			log.Debug().Stringer("Device", h).Err(err).Msg("Error while releasing connection")
		}

		log.Trace().Stringer("Device", h).Msg("Disconnected from device")
	}()

	log.Trace().Stringer("Device", h).Msg("Connected to device")

	// the model talks to the device synchronously; run it aside so the timeout can abandon it.
	// releasing the connection unblocks it.
	ch := make(chan readResult, 1)

	go func() {
		reading, err := s.model.Read(conn)
		ch <- readResult{reading, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return r, res.err
		}

		res.reading.Address = h.Address

		return res.reading, nil
	case <-ctx.Done():
		return r, fmt.Errorf("%w: %w", device.ErrRead, ctx.Err())
	}
}
