package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is a reasonable default for modern CPUs. std keeps its own
// constant unexported; 64 works well in practice.
const CacheLineSize = 64

// PaddedAtomicInt64 is an atomic int64 padded to exactly one cache line.
// Use when many goroutines bump different counters to avoid false sharing.
type PaddedAtomicInt64 struct {
	atomic.Int64
	_ [CacheLineSize - 8]byte
}

// PaddedAtomicUint64 is the uint64 counterpart padded to one cache line.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// Compile-time size checks (must be exactly one cache line).
var (
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicInt64{}))]byte
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicUint64{}))]byte
)
