// Package util provides file, formatting, and host inspection helpers.
package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var byteUnits = []string{"KiB", "MiB", "GiB", "TiB"}

// FormatBytes formats a byte count with binary units.
func FormatBytes(bytes uint64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	v := float64(bytes) / 1024
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", v, byteUnits[unit])
}

// FormatClock formats a duration as HH:MM:SS, truncating fractions of a second.
func FormatClock(d time.Duration) string {
	if d < 0 {
		return "--:--:--"
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

// FormatRate formats a throughput as "<n> <unit>/s" with one decimal.
func FormatRate(count int, elapsed time.Duration, unit string) string {
	if elapsed <= 0 {
		return fmt.Sprintf("-- %s/s", unit)
	}
	return fmt.Sprintf("%.1f %s/s", float64(count)/elapsed.Seconds(), unit)
}

// FormatShape formats tensor dimensions as "N x D".
func FormatShape(dims ...int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, " x ")
}
