package memory

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// SystemSampler reads system-wide memory utilization.
//
// On Linux it parses /proc/meminfo and computes used = total - available.
// Elsewhere, or if /proc/meminfo is unreadable, it falls back to the Go
// runtime's view of its own heap against total system pages, which is a
// coarse but safe approximation.
func SystemSampler() (float64, error) {
	if percent, err := meminfoSampler("/proc/meminfo"); err == nil {
		return percent, nil
	}
	return runtimeSampler()
}

// meminfoSampler parses a meminfo-format file and returns percent used.
func meminfoSampler(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	var totalKB, availableKB int64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB = value
		case "MemAvailable:":
			availableKB = value
		}
	}

	if totalKB <= 0 {
		return 0, fmt.Errorf("%s missing MemTotal", path)
	}
	if availableKB < 0 || availableKB > totalKB {
		return 0, fmt.Errorf("%s has inconsistent MemAvailable", path)
	}
	used := totalKB - availableKB
	return float64(used) / float64(totalKB) * 100, nil
}

// runtimeSampler approximates utilization from the Go heap. It never errors;
// the signature matches Sampler for use as a fallback.
func runtimeSampler() (float64, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.Sys == 0 {
		return 0, nil
	}
	percent := float64(stats.HeapAlloc) / float64(stats.Sys) * 100
	if percent > 100 {
		percent = 100
	}
	return percent, nil
}
