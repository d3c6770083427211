// Package snapshot defines the structured GPU telemetry records and the
// parser that produces them from nvidia-smi's machine-readable output.
// Everything here is pure; no I/O.
package snapshot

import (
	"math"
	"time"
)

// DeviceRecord holds one GPU's readings. Numeric fields are pointers:
// nil means the device or driver does not report that value, which must
// be distinguishable from a real zero reading.
type DeviceRecord struct {
	Index             int      `json:"index"`
	Name              string   `json:"name"`
	TemperatureC      *float64 `json:"temperature_c"`
	UtilizationGPU    *float64 `json:"utilization_gpu"`
	MemoryUtilization *float64 `json:"memory_utilization"`
	MemoryUsedMB      *float64 `json:"memory_used_mb"`
	MemoryTotalMB     *float64 `json:"memory_total_mb"`
	PowerDrawW        *float64 `json:"power_draw_w"`
	PowerLimitW       *float64 `json:"power_limit_w"`
	FanSpeedPct       *float64 `json:"fan_speed_pct"`
}

// Summary aggregates readings across all devices in a snapshot. Fields are
// computed only over devices that report them; a field absent on every
// device stays nil rather than reading as zero.
type Summary struct {
	GPUCount          int      `json:"gpu_count"`
	MemoryUsedMB      *float64 `json:"memory_used_mb"`
	MemoryTotalMB     *float64 `json:"memory_total_mb"`
	MemoryUtilization *float64 `json:"memory_utilization"`
	UtilizationAvg    *float64 `json:"utilization_avg"`
	TemperatureAvg    *float64 `json:"temperature_avg"`
	PowerDrawAvg      *float64 `json:"power_draw_avg"`
}

// Snapshot is one consistent capture of all device records plus the derived
// summary. Immutable once constructed; the publisher only ever swaps whole
// snapshots.
type Snapshot struct {
	GPUs          []DeviceRecord `json:"gpus"`
	Summary       Summary        `json:"summary"`
	DriverVersion string         `json:"driver_version,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Float returns a pointer to v. Convenience for building records.
func Float(v float64) *float64 {
	return &v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// summarize derives the Summary for a set of device records.
func summarize(gpus []DeviceRecord) Summary {
	s := Summary{GPUCount: len(gpus)}

	s.MemoryUsedMB = total(gpus, func(g DeviceRecord) *float64 { return g.MemoryUsedMB })
	s.MemoryTotalMB = total(gpus, func(g DeviceRecord) *float64 { return g.MemoryTotalMB })
	if s.MemoryUsedMB != nil && s.MemoryTotalMB != nil && *s.MemoryTotalMB > 0 {
		s.MemoryUtilization = Float(round1(*s.MemoryUsedMB / *s.MemoryTotalMB * 100))
	}

	s.UtilizationAvg = average(gpus, func(g DeviceRecord) *float64 { return g.UtilizationGPU })
	s.TemperatureAvg = average(gpus, func(g DeviceRecord) *float64 { return g.TemperatureC })
	s.PowerDrawAvg = average(gpus, func(g DeviceRecord) *float64 { return g.PowerDrawW })

	return s
}

// total sums a field over the devices that report it; nil when none do.
func total(gpus []DeviceRecord, field func(DeviceRecord) *float64) *float64 {
	var sum float64
	reported := false
	for _, g := range gpus {
		if v := field(g); v != nil {
			sum += *v
			reported = true
		}
	}
	if !reported {
		return nil
	}
	return Float(round1(sum))
}

// average computes the mean of a field over the devices that report it.
func average(gpus []DeviceRecord, field func(DeviceRecord) *float64) *float64 {
	var sum float64
	var n int
	for _, g := range gpus {
		if v := field(g); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return Float(round2(sum / float64(n)))
}
