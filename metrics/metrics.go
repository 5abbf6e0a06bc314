package metrics

import (
  "strconv"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"
  "github.com/scient-labs/scient-gateway/device"
)

var (
  descTemperature = prometheus.NewDesc(
    "sensor_temperature_celsius",
    "Temperature reported by the sensor node in Celsius.",
    []string{"address"},
    nil,
  )

  descPressure = prometheus.NewDesc(
    "sensor_pressure_hpa",
    "Barometric pressure reported by the sensor node in hPa.",
    []string{"address"},
    nil,
  )

  descHumidity = prometheus.NewDesc(
    "sensor_humidity_percent",
    "Relative humidity reported by the sensor node.",
    []string{"address"},
    nil,
  )

  descGas = prometheus.NewDesc(
    "sensor_gas_resistance",
    "Gas sensor value reported by the sensor node.",
    []string{"address"},
    nil,
  )
)

// CollectFunc returns the latest readings keyed by device address. A nil map means nothing
// has been collected yet.
type CollectFunc func() (map[string]device.Reading, time.Time)

type collector struct {
  CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func (c *collector) emit(ch chan<- prometheus.Metric, ts time.Time, desc *prometheus.Desc, addr, raw string) {
  v, err := strconv.ParseFloat(raw, 64)

  if err != nil {
    log.Debug().
      Str("Device", addr).
      Str("Value", raw).
      Msg("Skipping non-numeric measurement")

    return
  }

  m := prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, addr)

  if !ts.IsZero() {
    m = prometheus.NewMetricWithTimestamp(ts, m)
  }

  ch <- m
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  out, ts := c.CollectFunc()

  for addr, reading := range out {
    c.emit(ch, ts, descTemperature, addr, reading.Temperature)
    c.emit(ch, ts, descPressure, addr, reading.Pressure)
    c.emit(ch, ts, descHumidity, addr, reading.Humidity)
    c.emit(ch, ts, descGas, addr, reading.Gas)
  }
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}
