package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/scient-labs/scient-gateway/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	latest := map[string]device.Reading{
		"aa:bb:cc:dd:ee:01": {Temperature: "24.5", Pressure: "1013", Humidity: "60", Gas: "120"},
		"aa:bb:cc:dd:ee:02": {Temperature: "19", Pressure: "n/a", Humidity: "55.5", Gas: "98"},
	}

	reg := prometheus.NewPedanticRegistry()
	RegisterCollector(func() (map[string]device.Reading, time.Time) {
		return latest, time.Time{}
	}, reg)

	expected := `
# HELP sensor_temperature_celsius Temperature reported by the sensor node in Celsius.
# TYPE sensor_temperature_celsius gauge
sensor_temperature_celsius{address="aa:bb:cc:dd:ee:01"} 24.5
sensor_temperature_celsius{address="aa:bb:cc:dd:ee:02"} 19
# HELP sensor_pressure_hpa Barometric pressure reported by the sensor node in hPa.
# TYPE sensor_pressure_hpa gauge
sensor_pressure_hpa{address="aa:bb:cc:dd:ee:01"} 1013
`

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"sensor_temperature_celsius", "sensor_pressure_hpa"))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	// the unparsable pressure is skipped.
	assert.Equal(t, 7, count)
}

func TestCollector_NothingCollectedYet(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCollector(func() (map[string]device.Reading, time.Time) {
		return nil, time.Time{}
	}, reg)

	count, err := testutil.GatherAndCount(reg)

	require.NoError(t, err)
	assert.Zero(t, count)
}
