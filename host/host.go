// Package host samples the gateway's own health: CPU load and temperature, memory and disk.
package host

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

const DefaultCPUWindow = 4 * time.Second

// Snapshot is an instantaneous view of the host. It is a plain value and safe to share.
type Snapshot struct {
	CPUPercent        float64
	CPUTemperatureC   float64
	MemoryUsedPercent float64
	DiskUsedPercent   float64
}

func (s Snapshot) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("CPUPercent", s.CPUPercent).
		Float64("CPUTemperatureC", s.CPUTemperatureC).
		Float64("MemoryUsedPercent", s.MemoryUsedPercent).
		Float64("DiskUsedPercent", s.DiskUsedPercent)
}

// Sampler reads host metrics through gopsutil.
type Sampler struct {
	// CPU usage is averaged over this window; Sample blocks for as long.
	CPUWindow time.Duration
	// Mount point whose usage is reported.
	DiskPath string

	cpuPercent   func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	virtualMem   func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	diskUsage    func(ctx context.Context, path string) (*disk.UsageStat, error)
	temperatures func(ctx context.Context) ([]sensors.TemperatureStat, error)
}

func NewSampler(cpuWindow time.Duration) *Sampler {
	return &Sampler{
		CPUWindow:    cpuWindow,
		DiskPath:     "/",
		cpuPercent:   cpu.PercentWithContext,
		virtualMem:   mem.VirtualMemoryWithContext,
		diskUsage:    disk.UsageWithContext,
		temperatures: sensors.TemperaturesWithContext,
	}
}

// sensor keys that carry the SoC / package temperature, most specific first.
var cpuSensorKeys = []string{"cpu_thermal", "cpu", "soc", "coretemp_package", "k10temp", "thermal_zone0"}

// CPUTemperature picks the CPU temperature out of the host's sensors. It falls back to the
// first sensor reporting a positive value.
func CPUTemperature(stats []sensors.TemperatureStat) (float64, bool) {
	for _, key := range cpuSensorKeys {
		for _, s := range stats {
			if strings.Contains(strings.ToLower(s.SensorKey), key) && s.Temperature > 0 {
				return s.Temperature, true
			}
		}
	}

	for _, s := range stats {
		if s.Temperature > 0 {
			return s.Temperature, true
		}
	}

	return 0, false
}

// Sample reads every metric. Metrics that fail are left at zero and reported in the returned
// error; the snapshot is usable either way.
func (s *Sampler) Sample(ctx context.Context) (snap Snapshot, err error) {
	var errs []string

	if p, e := s.cpuPercent(ctx, s.CPUWindow, false); e != nil {
		errs = append(errs, "cpu: "+e.Error())
	} else if len(p) > 0 {
		snap.CPUPercent = p[0]
	}

	if vm, e := s.virtualMem(ctx); e != nil {
		errs = append(errs, "memory: "+e.Error())
	} else {
		snap.MemoryUsedPercent = vm.UsedPercent
	}

	if du, e := s.diskUsage(ctx, s.DiskPath); e != nil {
		errs = append(errs, "disk: "+e.Error())
	} else {
		snap.DiskUsedPercent = du.UsedPercent
	}

	// gopsutil returns partial stats together with a warning error for unreadable sensors.
	stats, e := s.temperatures(ctx)

	if t, ok := CPUTemperature(stats); ok {
		snap.CPUTemperatureC = t
	} else if e != nil {
		errs = append(errs, "temperature: "+e.Error())
	}

	if len(errs) > 0 {
		return snap, fmt.Errorf("host: incomplete sample: %s", strings.Join(errs, "; "))
	}

	return snap, nil
}
