package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gpuwatch/internal/errors"
)

// queryFields is the exact nvidia-smi field order the parser expects.
// Changing order or count here is a breaking change to Parse.
var queryFields = []string{
	"index",
	"name",
	"temperature.gpu",
	"utilization.gpu",
	"utilization.memory",
	"memory.used",
	"memory.total",
	"power.draw",
	"power.limit",
	"fan.speed",
	"driver_version",
}

// minFields is the field count a line needs to be usable. The trailing
// driver_version column is tolerated missing; older drivers omit it from
// some query combinations.
const minFields = 10

// QueryCommand returns the diagnostic command whose output Parse expects.
// LC_ALL=C pins decimal formatting regardless of the remote locale.
func QueryCommand() string {
	return "LC_ALL=C nvidia-smi --query-gpu=" + strings.Join(queryFields, ",") +
		" --format=csv,noheader,nounits"
}

// Parse converts raw nvidia-smi CSV output into a Snapshot. Lines that
// cannot be parsed are dropped and reported as warnings; a bad field within
// an otherwise valid line only blanks that field. Parsing fails only when
// no line at all yields a device.
func Parse(raw string, capturedAt time.Time) (*Snapshot, []string, error) {
	var gpus []DeviceRecord
	var warnings []string
	var driverVersion string
	seen := make(map[int]bool)

	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	lineNo := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNo++
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		if len(row) == 1 && row[0] == "" {
			continue
		}
		if len(row) < minFields {
			warnings = append(warnings, fmt.Sprintf(
				"line %d: expected at least %d fields, got %d", lineNo, minFields, len(row)))
			continue
		}

		index, err := strconv.Atoi(row[0])
		if err != nil {
			warnings = append(warnings, fmt.Sprintf(
				"line %d: unparseable device index %q", lineNo, row[0]))
			continue
		}
		if seen[index] {
			warnings = append(warnings, fmt.Sprintf(
				"line %d: duplicate device index %d", lineNo, index))
			continue
		}
		seen[index] = true

		record := DeviceRecord{
			Index:          index,
			Name:           deviceName(row[1]),
			TemperatureC:   numericField(row[2]),
			UtilizationGPU: numericField(row[3]),
			MemoryUsedMB:   numericField(row[5]),
			MemoryTotalMB:  numericField(row[6]),
			PowerDrawW:     numericField(row[7]),
			PowerLimitW:    numericField(row[8]),
			FanSpeedPct:    numericField(row[9]),
		}

		// Reported memory utilization wins; derive from used/total when the
		// driver doesn't report it.
		record.MemoryUtilization = numericField(row[4])
		if record.MemoryUtilization == nil &&
			record.MemoryUsedMB != nil && record.MemoryTotalMB != nil && *record.MemoryTotalMB > 0 {
			record.MemoryUtilization = Float(round1(*record.MemoryUsedMB / *record.MemoryTotalMB * 100))
		}

		if driverVersion == "" && len(row) > 10 {
			if v := row[10]; v != "" && !isSentinel(v) {
				driverVersion = v
			}
		}

		gpus = append(gpus, record)
	}

	if len(gpus) == 0 {
		return nil, warnings, errors.New(errors.ErrParse,
			"No parseable device lines in nvidia-smi output",
			"Check nvidia-smi produces CSV output on the remote host")
	}

	return &Snapshot{
		GPUs:          gpus,
		Summary:       summarize(gpus),
		DriverVersion: driverVersion,
		Timestamp:     capturedAt.UTC(),
	}, warnings, nil
}

// isSentinel reports whether a value is one of nvidia-smi's "not available"
// markers.
func isSentinel(v string) bool {
	switch v {
	case "N/A", "[N/A]", "Not Supported", "[Not Supported]", "Unknown Error", "[Unknown Error]":
		return true
	}
	return false
}

// numericField converts a CSV cell to a float pointer. Sentinels and values
// that fail numeric conversion yield nil; one bad field never drops the
// whole device.
func numericField(v string) *float64 {
	if v == "" || isSentinel(v) {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func deviceName(v string) string {
	if v == "" || isSentinel(v) {
		return "Unknown"
	}
	return v
}
