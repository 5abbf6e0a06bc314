package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/scient-labs/scient-gateway/ble"
	"github.com/scient-labs/scient-gateway/collector"
	"github.com/scient-labs/scient-gateway/geo"
	"github.com/scient-labs/scient-gateway/host"
	"github.com/scient-labs/scient-gateway/metrics"
	"github.com/scient-labs/scient-gateway/relay"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  if cfg.DiscoverDevices {
    doDeviceDiscovery(cfg)
    return
  }

  log.Info().
    Stringer("Node", cfg.Node).
    Str("Relay", cfg.Relay).
    Str("BindAddr", cfg.BindAddress).
    Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
    Msg("Starting with the specified configuration")

  ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
  defer stop()

  bleHandle := initBle(cfg)
  defer bleHandle.Stop()

  sampler := host.NewSampler(cfg.CPUWindow)

  var locator collector.Locator

  if cfg.Location != "" {
    locator = geo.NewResolver(cfg.Location, cfg.GeocoderURL)
  }

  logStartupSnapshot(ctx, sampler, locator)

  rel, closeRelay := initRelay(ctx, cfg)
  defer closeRelay()

  coll := collector.NewRecurring(cfg.Node.TargetName(), collector.Pipeline{
    Scanner: bleHandle,
    Reader: collector.NewSession(bleHandle, cfg.Node, cfg.CollectionTimeout),
    Relay: rel,
    Host: sampler,
    Locator: locator,
  })

  coll.ScanDuration = cfg.ScanDuration
  coll.DeviceID = cfg.DeviceID
  coll.Options = collector.CollectionOptions{
    MaxParallel: cfg.MaxParallel,
    MaxRetries: cfg.MaxRetries,
    TimeoutPerAttempt: cfg.CollectionTimeout,
    BackoffFactor: cfg.Backoff,
  }

  if cfg.BindAddress != "" {
    go serveMetrics(cfg.BindAddress, coll)
  }

  coll.Start(ctx, cfg.CollectionInterval)
}

func initBle(cfg config) *ble.Handle {
  // the complete local name is only sent in scan responses.
  bleHandle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, ble.FlagScanTypeActive)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  return bleHandle
}

func initRelay(ctx context.Context, cfg config) (relay.Relay, func()) {
  switch cfg.Relay {
  case relayMQTT:
    m := relay.NewMQTT(cfg.MQTT)

    connectCtx, cancel := context.WithTimeout(ctx, 30 * time.Second)
    defer cancel()

    // paho keeps retrying in the background; records published meanwhile are dropped.
    if err := m.Connect(connectCtx); err != nil {
      log.Warn().Err(err).Str("Broker", cfg.MQTT.Broker).Msg("MQTT broker not reachable yet")
    }

    return m, m.Close
  default:
    log.Info().
      Str("EnvironmentURL", cfg.HTTP.EnvironmentURL).
      Str("HealthURL", cfg.HTTP.HealthURL).
      Int("Headers", len(cfg.HTTP.Headers)).
      Msg("Relaying records over HTTP")

    return relay.NewHTTP(cfg.HTTP), func() {}
  }
}

func logStartupSnapshot(ctx context.Context, sampler *host.Sampler, locator collector.Locator) {
  snap, err := sampler.Sample(ctx)

  if err != nil {
    log.Warn().Err(err).Msg("Some host metrics are unavailable")
  }

  log.Info().EmbedObject(snap).Msg("Host status")

  if locator != nil {
    // failures are logged and retried on the first cycle.
    if _, err := locator.Resolve(ctx); err != nil {
      log.Warn().Err(err).Msg("Failed to resolve gateway location")
    }
  }
}

func serveMetrics(addr string, coll *collector.Recurring) {
  registry := prometheus.NewRegistry()

  ble.RegisterMetrics(registry)
  collector.RegisterMetrics(registry)
  relay.RegisterMetrics(registry)
  metrics.RegisterCollector(coll.Latest, registry)

  log.Info().
      Str("ListenAddress", addr).
      Msg("Starting Prometheus server")

  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  if err := http.ListenAndServe(addr, mux); err != nil {
      log.Fatal().Err(err).Msg("Unable to bind on requested address")
  }
}
