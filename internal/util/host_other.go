//go:build !linux && !darwin

package util

func totalMemoryBytes() uint64 { return 0 }

func physicalCores() int { return 0 }
