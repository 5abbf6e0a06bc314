package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/scient-labs/scient-gateway/ble"
	"github.com/scient-labs/scient-gateway/collector"
	"github.com/scient-labs/scient-gateway/device"
	"github.com/scient-labs/scient-gateway/device/scient"
	"github.com/scient-labs/scient-gateway/geo"
	"github.com/scient-labs/scient-gateway/host"
	"github.com/scient-labs/scient-gateway/relay"
)

const (
  relayHTTP = "http"
  relayMQTT = "mqtt"
)

type config struct {
  Debug, Trace bool
  BindAddress string
  DiscoverDevices bool
  BluetoothDeviceId int
  BluetoothConnParams ble.ConnParams
  Node device.Model
  ScanDuration time.Duration
  CollectionInterval time.Duration
  CollectionTimeout time.Duration
  MaxParallel int
  MaxRetries int
  Backoff time.Duration
  DeviceID string
  Location string
  GeocoderURL string
  CPUWindow time.Duration

  Relay string
  HTTP relay.HTTPOptions
  MQTT relay.MQTTOptions
}

type boundNode struct {
  device.Factory
  node *device.Model
}

func (b *boundNode) String() string {
  return ""
}

func (b *boundNode) Set(v string) error {
  ds := device.NewDeviceSpec(v)

  model, err := b.FromSpec(ds)
  if err != nil {
    return fmt.Errorf("failed to create node model: %w", err)
  }

  *b.node = model

  return nil
}

// headerList collects repeated `Name: value` flags.
type headerList map[string]string

func (h headerList) String() string {
  return ""
}

func (h headerList) Set(v string) error {
  name, value, ok := strings.Cut(v, ":")

  if !ok || strings.TrimSpace(name) == "" {
    return fmt.Errorf("invalid header %q, expected `Name: value`", v)
  }

  h[strings.TrimSpace(name)] = strings.TrimSpace(value)

  return nil
}

func parseArgs(fs *flag.FlagSet, args []string) (cfg config, err error) {
  var qos uint

  cfg.BluetoothConnParams = ble.ConnParamsDefault
  cfg.Node = scient.New(scient.DefaultTargetName, scient.DefaultAttributeIndex, nil)
  cfg.HTTP.Headers = headerList{}

  factory := &scient.Factory{}

  fs.StringVar(&cfg.BindAddress, "bind", "", "Serve Prometheus metrics on this address (disabled when empty)")
  fs.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", 0, "Bluetooth (HCI) device ID")
  fs.Var(&cfg.BluetoothConnParams, "bluetooth-connection-params", "Bluetooth connection parameters (one of 'default' or 'low-power')")
  fs.BoolVar(&cfg.DiscoverDevices, "discover", false, "Discover available BLE devices and quit")
  fs.Var(&boundNode{Factory: factory, node: &cfg.Node}, "node",
    "Node spec in the form of `key=value,key=value`.\n" + factory.Help())
  fs.DurationVar(&cfg.ScanDuration, "scan-duration", collector.DefaultScanDuration, "How long each discovery scan lasts")
  fs.DurationVar(&cfg.CollectionInterval, "interval", collector.DefaultInterval, "Delay between two cycles")
  fs.DurationVar(&cfg.CollectionTimeout, "timeout", collector.DefaultTimeoutPerAttempt,
    "Timeout for connecting to and reading one device (per retry attempt)")
  fs.IntVar(&cfg.MaxParallel, "max-parallel", collector.DefaultMaxParallel, "Max number of devices read at the same time")
  fs.IntVar(&cfg.MaxRetries, "max-retries", collector.DefaultMaxRetries, "Max number of retries per device and cycle")
  fs.DurationVar(&cfg.Backoff, "backoff", collector.DefaultBackoffFactor, "Exponential backoff factor for retries")
  fs.StringVar(&cfg.DeviceID, "device-id", "", "Device id sent with every record (defaults to the node address)")
  fs.StringVar(&cfg.Location, "location", "", "Place name of the gateway, geocoded once for the health records (e.g. \"Hyderabad India\")")
  fs.StringVar(&cfg.GeocoderURL, "geocoder-url", geo.DefaultSearchURL, "Nominatim compatible search endpoint")
  fs.DurationVar(&cfg.CPUWindow, "cpu-window", host.DefaultCPUWindow, "Window over which CPU usage is averaged")

  fs.StringVar(&cfg.Relay, "relay", relayHTTP, "Relay transport (one of 'http' or 'mqtt')")
  fs.StringVar(&cfg.HTTP.EnvironmentURL, "env-url", "", "Endpoint receiving environment records")
  fs.StringVar(&cfg.HTTP.HealthURL, "health-url", "", "Endpoint receiving device health records")
  fs.Var(headerList(cfg.HTTP.Headers), "header", "Extra HTTP header sent to the endpoints, `Name: value` (repeatable)")
  fs.DurationVar(&cfg.HTTP.Timeout, "http-timeout", relay.DefaultHTTPTimeout, "Timeout for one HTTP delivery")
  fs.StringVar(&cfg.MQTT.Broker, "mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
  fs.StringVar(&cfg.MQTT.ClientID, "mqtt-client-id", relay.DefaultMQTTClientID, "MQTT client id")
  fs.StringVar(&cfg.MQTT.Username, "mqtt-username", "", "MQTT username")
  fs.StringVar(&cfg.MQTT.Password, "mqtt-password", os.Getenv("MQTT_PASSWORD"), "MQTT password (or MQTT_PASSWORD)")
  fs.UintVar(&qos, "mqtt-qos", 0, "MQTT QoS (0 or 1)")
  fs.StringVar(&cfg.MQTT.EnvironmentTopic, "mqtt-env-topic", relay.DefaultMQTTEnvironmentTopic,
    "Topic for environment records, %s is the device id")
  fs.StringVar(&cfg.MQTT.HealthTopic, "mqtt-health-topic", relay.DefaultMQTTHealthTopic,
    "Topic for device health records, %s is the device id")

  fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  fs.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  if err := fs.Parse(args); err != nil {
    return cfg, err
  }

  // checked before narrowing to a byte, which would wrap.
  if qos > 1 {
    return cfg, fmt.Errorf("-mqtt-qos must be 0 or 1, got %d", qos)
  }

  cfg.MQTT.QoS = byte(qos)

  return cfg, cfg.validate()
}

func (cfg config) validate() error {
  if cfg.DiscoverDevices {
    return nil
  }

  var errs []error

  if cfg.ScanDuration <= 0 {
    errs = append(errs, errors.New("-scan-duration must be positive"))
  }

  if cfg.CollectionInterval <= 0 {
    errs = append(errs, errors.New("-interval must be positive"))
  }

  if cfg.MaxRetries < 0 {
    errs = append(errs, errors.New("-max-retries must not be negative"))
  }

  switch cfg.Relay {
  case relayHTTP:
    if cfg.HTTP.EnvironmentURL == "" || cfg.HTTP.HealthURL == "" {
      errs = append(errs, errors.New("-env-url and -health-url are required with the http relay"))
    }
  case relayMQTT:
    if cfg.MQTT.Broker == "" {
      errs = append(errs, errors.New("-mqtt-broker is required with the mqtt relay"))
    }
  default:
    errs = append(errs, fmt.Errorf("unknown relay %q", cfg.Relay))
  }

  return errors.Join(errs...)
}

func ParseArgs() config {
  fs := flag.CommandLine

  cfg, err := parseArgs(fs, os.Args[1:])

  if err != nil {
    fmt.Fprintln(os.Stderr, "Error:", err)
    fs.Usage()
    os.Exit(1)
  }

  return cfg
}
