// Package config provides configuration types and defaults for marlin.
package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrInvalidSampleRate indicates a sample rate outside the valid range.
	ErrInvalidSampleRate = errors.New("sample rate out of range")

	// ErrInvalidStride indicates a non-positive stride.
	ErrInvalidStride = errors.New("stride must be positive")

	// ErrInvalidReduction indicates an unknown reduction name.
	ErrInvalidReduction = errors.New("invalid reduction")

	// ErrInvalidFaceMissPolicy indicates an unknown face miss policy.
	ErrInvalidFaceMissPolicy = errors.New("invalid face miss policy")

	// ErrInvalidDecoder indicates an unknown frame decoder.
	ErrInvalidDecoder = errors.New("invalid decoder")

	// ErrNoModel indicates no model name was given.
	ErrNoModel = errors.New("no model name configured")

	// ErrInvalidCacheDir indicates an unusable cache directory.
	ErrInvalidCacheDir = errors.New("invalid cache directory")
)
