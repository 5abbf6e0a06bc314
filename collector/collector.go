package collector

import (
  "context"
  "errors"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"
  "github.com/scient-labs/scient-gateway/collector/model"
  "github.com/scient-labs/scient-gateway/device"
  "github.com/scient-labs/scient-gateway/utils"
  "golang.org/x/sync/errgroup"
)

const (
  DefaultMaxParallel = 4
  DefaultMaxRetries = 0
  DefaultTimeoutPerAttempt = 30 * time.Second
  DefaultBackoffFactor = 500 * time.Millisecond
)

var (
  readsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "scient_gateway_device_reads_total",
    Help: "Device reads by outcome (ok or failure kind).",
  }, []string{"outcome"})
)

type CollectionOptions struct {
  // Max number of devices read at the same time. <= 0 means unbounded.
  MaxParallel int
  MaxRetries int
  // Bounds each attempt, retries included. <= 0 means unbounded.
  TimeoutPerAttempt time.Duration
  BackoffFactor time.Duration
}

type Reader interface {
  ReadTelemetry(ctx context.Context, h device.Handle) (device.Reading, error)
}

// FailureKind maps a per-device error to a stable label used in logs and metrics.
func FailureKind(err error) string {
  switch {
  case err == nil:
    return "ok"
  case utils.ErrorIsAnyOf(err, context.DeadlineExceeded):
    return "timeout"
  case errors.Is(err, device.ErrConnect):
    return "connect"
  case errors.Is(err, device.ErrNoAttributes):
    return "no_attributes"
  case errors.Is(err, device.ErrNullPayload):
    return "null_payload"
  case errors.Is(err, device.ErrParse):
    return "parse"
  case errors.Is(err, device.ErrRead):
    return "read"
  default:
    return "unknown"
  }
}

// readAttempt bounds a single read by timeout. A zero timeout leaves it to the parent context.
func readAttempt(ctx context.Context, r Reader, h device.Handle, timeout time.Duration) (device.Reading, error) {
  if timeout <= 0 {
    return r.ReadTelemetry(ctx, h)
  }

  attemptCtx, cancel := context.WithTimeout(ctx, timeout)
  defer cancel()

  return r.ReadTelemetry(attemptCtx, h)
}

func readWithRetries(
  ctx context.Context,
  r Reader,
  h device.Handle,
  options CollectionOptions,
) (reading device.Reading, err error) {
  for attempt := 0; ; attempt += 1 {
    reading, err = readAttempt(ctx, r, h, options.TimeoutPerAttempt)

    if err == nil || attempt >= options.MaxRetries || ctx.Err() != nil {
      return reading, err
    }

    backoff := options.BackoffFactor << int64(attempt)

    if backoff < 0 {
      backoff = DefaultBackoffFactor
    }

    log.Debug().
      Stringer("Device", h).
      Int("RetriesLeft", options.MaxRetries - attempt).
      Dur("Backoff", backoff).
      Err(err).
      Msg("Collection failed for device - will retry")

    select {
    case <-ctx.Done():
      return reading, err
    case <-time.After(backoff):
    }
  }
}

// Collect reads every device and returns one result per handle, in handle order. A failing
// device never prevents the others from being read.
func Collect(
  ctx context.Context,
  r Reader,
  handles []device.Handle,
  options CollectionOptions,
) model.CycleResult {
  out := make(model.CycleResult, len(handles))

  log.Debug().
    Array("Devices", utils.ToZeroLogArray(handles)).
    Int("MaxParallel", options.MaxParallel).
    Msg("Collecting readings from devices")

  var eg errgroup.Group

  if options.MaxParallel > 0 {
    eg.SetLimit(options.MaxParallel)
  }

  for i, h := range handles {
    eg.Go(func() error {
      reading, err := readWithRetries(ctx, r, h, options)

      // each worker owns its own slot.
      out[i] = model.Result{
        Reading: reading,
        Error: err,
      }

      readsCounter.WithLabelValues(FailureKind(err)).Inc()

      log.Trace().
        Stringer("Device", h).
        Stringer("Result", out[i]).
        Msg("Received result for device")

      return nil
    })
  }

  _ = eg.Wait()

  return out
}
