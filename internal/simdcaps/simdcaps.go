// Package simdcaps detects CPU features once at init() and publishes the
// selected kernel Level. It holds no table of kernel functions: callers
// branch on Detected (kernel.BlockSmooth is the only one that does).
package simdcaps

import "github.com/klauspost/cpuid/v2"

// Level identifies which kernel variant was selected.
type Level int

const (
	LevelScalar Level = iota
	LevelSSE
	LevelAVX2
)

func (l Level) String() string {
	switch l {
	case LevelSSE:
		return "sse"
	case LevelAVX2:
		return "avx2"
	default:
		return "scalar"
	}
}

// Detected is the Level chosen for this process, computed once at package
// init from github.com/klauspost/cpuid/v2 feature flags.
var Detected = detect()

func detect() Level {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX2):
		return LevelAVX2
	case cpuid.CPU.Supports(cpuid.SSE2):
		return LevelSSE
	default:
		return LevelScalar
	}
}

// HasAVX2 reports whether the AVX2 kernel variants are selected.
func HasAVX2() bool { return Detected == LevelAVX2 }

// HasSSE2 reports whether at least the SSE2 kernel variants are selected.
func HasSSE2() bool { return Detected == LevelSSE || Detected == LevelAVX2 }
