package relay

import (
	"strconv"

	"github.com/scient-labs/scient-gateway/device"
	"github.com/scient-labs/scient-gateway/geo"
	"github.com/scient-labs/scient-gateway/host"
)

// EnvironmentRecord carries one device's measurements. Values are kept exactly as the device
// reported them.
type EnvironmentRecord struct {
	DeviceID    string `json:"deviceId"`
	Humidity    string `json:"humidity"`
	Temperature string `json:"temperature"`
	Pressure    string `json:"pressure"`
	Gas         string `json:"gas"`
	// Reserved; always emitted, currently empty.
	Location string `json:"location"`
	Region   string `json:"region"`
}

// HealthRecord carries the gateway's own health at the time a device was read.
type HealthRecord struct {
	DeviceID     string `json:"deviceId"`
	CPUUsage     string `json:"cpuUsage"`
	MemoryUsage  string `json:"memoryUsage"`
	Latitude     string `json:"latitude"`
	Longitude    string `json:"longitude"`
	TemperatureC string `json:"temperatureC"`
}

// Envelope is everything relayed for one device in one cycle.
type Envelope struct {
	Environment EnvironmentRecord
	Health      HealthRecord
}

func NewEnvironmentRecord(deviceID string, r device.Reading) EnvironmentRecord {
	return EnvironmentRecord{
		DeviceID:    deviceID,
		Humidity:    r.Humidity,
		Temperature: r.Temperature,
		Pressure:    r.Pressure,
		Gas:         r.Gas,
	}
}

func NewHealthRecord(deviceID string, snap host.Snapshot, loc geo.Location) HealthRecord {
	return HealthRecord{
		DeviceID:     deviceID,
		CPUUsage:     formatFloat(snap.CPUPercent),
		MemoryUsage:  formatFloat(snap.MemoryUsedPercent),
		Latitude:     formatFloat(loc.Latitude),
		Longitude:    formatFloat(loc.Longitude),
		TemperatureC: formatFloat(snap.CPUTemperatureC),
	}
}

func NewEnvelope(deviceID string, r device.Reading, snap host.Snapshot, loc geo.Location) Envelope {
	return Envelope{
		Environment: NewEnvironmentRecord(deviceID, r),
		Health:      NewHealthRecord(deviceID, snap, loc),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
