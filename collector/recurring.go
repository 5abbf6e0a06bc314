package collector

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/scient-labs/scient-gateway/device"
	"github.com/scient-labs/scient-gateway/geo"
	"github.com/scient-labs/scient-gateway/host"
	"github.com/scient-labs/scient-gateway/relay"
	"github.com/scient-labs/scient-gateway/utils"
	"golang.org/x/sync/errgroup"
)

const (
  DefaultScanDuration = 10 * time.Second
  DefaultInterval = 90 * time.Second
)

var (
  cyclesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "scient_gateway_cycles_total",
    Help: "Poll cycles by outcome (ok, empty, scan_failed, panic).",
  }, []string{"outcome"})
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(readsCounter)
  reg.MustRegister(cyclesCounter)
}

type Scanner interface {
  ScanByName(ctx context.Context, name string, duration time.Duration) ([]device.Handle, error)
}

type HostSampler interface {
  Sample(ctx context.Context) (host.Snapshot, error)
}

type Locator interface {
  Resolve(ctx context.Context) (geo.Location, error)
}

// Pipeline holds the collaborators of a cycle. Host and Locator are optional.
type Pipeline struct {
  Scanner Scanner
  Reader Reader
  Relay relay.Relay
  Host HostSampler
  Locator Locator
}

type CycleReport struct {
  Devices int
  Failed int
  Relayed int
  RelayFailed int
  Duration time.Duration
}

func (r CycleReport) MarshalZerologObject(e *zerolog.Event) {
  e.Int("Devices", r.Devices).
    Int("Failed", r.Failed).
    Int("Relayed", r.Relayed).
    Int("RelayFailed", r.RelayFailed).
    Dur("DurationSec", r.Duration)
}

// Recurring drives scan, collect and relay cycles at a fixed interval.
type Recurring struct {
  TargetName string
  ScanDuration time.Duration
  // Relayed as deviceId instead of the device address when set.
  DeviceID string
  Options CollectionOptions

  p Pipeline

  readings map[string]device.Reading
  collectionTime time.Time
  mu sync.Mutex

  // records relayed since start
  packets atomic.Uint64

  // collector has been Start()ed
  started bool
}

func NewRecurring(targetName string, p Pipeline) *Recurring {
  return &Recurring{
    TargetName: targetName,
    ScanDuration: DefaultScanDuration,
    Options: CollectionOptions{
      MaxParallel: DefaultMaxParallel,
      MaxRetries: DefaultMaxRetries,
      TimeoutPerAttempt: DefaultTimeoutPerAttempt,
      BackoffFactor: DefaultBackoffFactor,
    },
    p: p,
  }
}

func (s *Recurring) Update(r map[string]device.Reading) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if r == nil {
    panic("attempted to set nil reading")
  }

  s.readings = r
  s.collectionTime = time.Now()
}

// Latest returns the readings of the last cycle that read at least one device, keyed by
// address. The map is nil until then.
func (s *Recurring) Latest() (map[string]device.Reading, time.Time) {
  s.mu.Lock()
  defer s.mu.Unlock()

  // safe to return as we replace the old map with a new one on update.
  return s.readings, s.collectionTime
}

func (s *Recurring) Packets() uint64 {
  return s.packets.Load()
}

func (s *Recurring) deviceID(r device.Reading) string {
  if s.DeviceID != "" {
    return s.DeviceID
  }

  return r.Address
}

func (s *Recurring) sampleHost(ctx context.Context) (snap host.Snapshot) {
  if s.p.Host == nil {
    return snap
  }

  snap, err := s.p.Host.Sample(ctx)

  if err != nil {
    log.Warn().Err(err).Msg("Host metrics incomplete for this cycle")
  }

  return snap
}

func (s *Recurring) locate(ctx context.Context) (loc geo.Location) {
  if s.p.Locator == nil {
    return loc
  }

  loc, err := s.p.Locator.Resolve(ctx)

  if err != nil {
    log.Warn().Err(err).Msg("Gateway location unavailable for this cycle")
  }

  return loc
}

// RunCycle runs a single scan, collect and relay cycle. Failures are logged and counted, never
// returned: a cycle cannot fail the loop.
func (s *Recurring) RunCycle(ctx context.Context) (report CycleReport) {
  start := time.Now()

  defer func() {
    report.Duration = time.Since(start)
  }()

  handles, err := s.p.Scanner.ScanByName(ctx, s.TargetName, s.ScanDuration)

  if err != nil {
    if ctx.Err() != nil && utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
      return report
    }

    cyclesCounter.WithLabelValues("scan_failed").Inc()

    log.Warn().
      Err(err).
      Msg("Discovery failed - treating as no devices for this cycle")

    return report
  }

  if len(handles) == 0 {
    cyclesCounter.WithLabelValues("empty").Inc()

    return report
  }

  report.Devices = len(handles)

  var (
    eg errgroup.Group
    results []*device.Reading
    snapshot host.Snapshot
  )

  eg.Go(func() error {
    cycle := Collect(ctx, s.p.Reader, handles, s.Options)

    for i, res := range cycle {
      if res.Error != nil {
        log.Warn().
          Stringer("Device", handles[i]).
          Str("Kind", FailureKind(res.Error)).
          Err(res.Error).
          Msg("Collection failed for device")
      }
    }

    report.Failed = cycle.Failed()
    results = cycle.Readings()

    return nil
  })

  eg.Go(func() error {
    snapshot = s.sampleHost(ctx)

    return nil
  })

  _ = eg.Wait()

  location := s.locate(ctx)
  update := make(map[string]device.Reading)

  for _, r := range results {
    if r == nil {
      continue
    }

    update[r.Address] = *r

    env := relay.NewEnvelope(s.deviceID(*r), *r, snapshot, location)

    if err := s.p.Relay.Deliver(ctx, env); err != nil {
      report.RelayFailed += 1

      log.Warn().
        Str("Device", r.Address).
        Err(err).
        Msg("Relay failed for device - record dropped")

      continue
    }

    report.Relayed += 1

    log.Info().
      Str("Device", r.Address).
      Stringer("Reading", r).
      Uint64("Packets", s.packets.Add(1)).
      Msg("Relayed reading")
  }

  if len(update) > 0 {
    s.Update(update)
  }

  cyclesCounter.WithLabelValues("ok").Inc()

  return report
}

func (s *Recurring) safeCycle(ctx context.Context) {
  defer func() {
    if r := recover(); r != nil {
      cyclesCounter.WithLabelValues("panic").Inc()

      log.Error().
        Interface("Panic", r).
        Str("Stack", string(debug.Stack())).
        Msg("Cycle panicked - continuing with the next one")
    }
  }()

  report := s.RunCycle(ctx)

  log.Debug().
    EmbedObject(report).
    Uint64("Packets", s.packets.Load()).
    Msg("Cycle finished")
}

// Start runs a cycle immediately and then once every interval, until ctx is done.
func (s *Recurring) Start(ctx context.Context, interval time.Duration) {
  if s.started {
    panic("attempted to call collector.Recurring.Start() twice")
  }

  s.started = true

  log.Info().
    Str("TargetName", s.TargetName).
    Dur("Interval", interval).
    Dur("ScanDurationSec", s.ScanDuration).
    Int("MaxParallel", s.Options.MaxParallel).
    Int("MaxRetries", s.Options.MaxRetries).
    Dur("TimeoutPerAttemptSec", s.Options.TimeoutPerAttempt).
    Msg("Starting recurring collector")

  for {
    s.safeCycle(ctx)

    select {
    case <-ctx.Done():
      log.Info().Msg("Recurring collector is shutting down")
      return
    case <-time.After(interval):
    }

    log.Trace().Dur("Interval", interval).Msg("Recurring collector tick: collecting...")
  }
}
