package util

import (
	"os"
	"runtime"
)

// SystemInfo describes the host running inference.
type SystemInfo struct {
	Hostname      string
	NumCPU        int
	PhysicalCores int
	OS            string
	Arch          string
	TotalMemory   uint64
}

// GetSystemInfo collects host information for the hardware summary.
func GetSystemInfo() SystemInfo {
	hostname, _ := os.Hostname()
	return SystemInfo{
		Hostname:      hostname,
		NumCPU:        runtime.NumCPU(),
		PhysicalCores: PhysicalCores(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		TotalMemory:   TotalMemoryBytes(),
	}
}

// TotalMemoryBytes returns installed memory in bytes, or 0 if unknown.
func TotalMemoryBytes() uint64 {
	return totalMemoryBytes()
}

// PhysicalCores returns the number of physical CPU cores. When the platform
// does not expose its topology, two hardware threads per core are assumed.
func PhysicalCores() int {
	if n := physicalCores(); n > 0 {
		return min(n, runtime.NumCPU())
	}
	return max(runtime.NumCPU()/2, 1)
}

// InferenceThreads returns an intra-op thread count for CPU inference: one
// per physical core, capped by limit when limit is positive.
func InferenceThreads(limit int) int {
	n := PhysicalCores()
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
