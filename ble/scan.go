package ble

import (
  "context"
  "errors"
  "fmt"
  "strings"
  "sync"
  "time"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux/hci"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"
  "github.com/scient-labs/scient-gateway/device"
)

// ErrScanAborted is returned when the transport fails before the scan window elapses. No
// partial results are returned alongside it.
var ErrScanAborted = errors.New("scan aborted by transport")

var scansCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
  Name: "scient_gateway_ble_scans_total",
  Help: "Scans by outcome (ok, empty, aborted).",
}, []string{"outcome"})

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

// Perform an active or passive scan and return every advertisement found.
func (h *Handle) ScanAll(ctx context.Context, onDevice func(Advertisement)) error {
  err := h.scan(ctx, true, onDevice)

  if err != nil {
    return fmt.Errorf("failed to initiate scan: %w", err)
  }

  return nil
}

func addressTypeOf(a Advertisement) device.AddressType {
  if _, ok := a.Addr().(hci.RandomAddress); ok {
    return device.AddressRandom
  }

  return device.AddressPublic
}

// nameFilter collects one handle per address whose advertised local name matches exactly.
// Advertisements delivered after close() are dropped.
type nameFilter struct {
  name string

  mu sync.Mutex
  seen map[string]struct{}
  found []device.Handle
  closed bool
}

func newNameFilter(name string) *nameFilter {
  return &nameFilter{
    name: name,
    seen: make(map[string]struct{}),
  }
}

func (f *nameFilter) observe(a Advertisement) {
  // LocalName falls back to the shortened name when no complete one is advertised. A shortened
  // name is a prefix of the complete one and never equals it, so the match stays exact.
  if a.LocalName() != f.name {
    return
  }

  addr := strings.ToLower(a.Addr().String())

  f.mu.Lock()
  defer f.mu.Unlock()

  if f.closed {
    return
  }

  if _, ok := f.seen[addr]; ok {
    return
  }

  f.seen[addr] = struct{}{}

  handle := device.Handle{
    Address: addr,
    AddressType: addressTypeOf(a),
  }

  f.found = append(f.found, handle)

  log.Info().
    Str("Name", f.name).
    Str("Addr", handle.Address).
    Stringer("AddrType", handle.AddressType).
    Int("RSSI", a.RSSI()).
    Msg("ble: found device")
}

func (f *nameFilter) close() []device.Handle {
  f.mu.Lock()
  defer f.mu.Unlock()

  f.closed = true

  return f.found
}

// ScanByName scans for the given duration and returns one handle per device advertising the
// target name, in the order they were first seen.
func (h *Handle) ScanByName(
  parentCtx context.Context,
  name string,
  duration time.Duration,
) ([]device.Handle, error) {
  ctx, cancel := context.WithTimeout(parentCtx, duration)
  defer cancel()

  filter := newNameFilter(name)

  log.Debug().
    Str("Name", name).
    Dur("DurationSec", duration).
    Msg("ble: scanning for devices")

  err := h.scan(ctx, true, filter.observe)
  found := filter.close()

  switch {
  case parentCtx.Err() != nil:
    return nil, parentCtx.Err()
  case err != nil && !errors.Is(err, context.DeadlineExceeded):
    scansCounter.WithLabelValues("aborted").Inc()

    log.Warn().
      Err(err).
      Int("Discarded", len(found)).
      Msg("ble: scan aborted by transport, discarding results")

    return nil, fmt.Errorf("%w: %w", ErrScanAborted, err)
  }

  if len(found) == 0 {
    scansCounter.WithLabelValues("empty").Inc()
    log.Info().Str("Name", name).Msg("ble: no devices found with the target name")
  } else {
    scansCounter.WithLabelValues("ok").Inc()
  }

  return found, nil
}
