package monitor

import (
	"fmt"
	"runtime"

	"github.com/prometheus/procfs"
)

// Sampler reports the process's resident memory.
type Sampler interface {
	ResidentBytes() (uint64, error)
}

// ProcSampler reads resident set size from /proc.
type ProcSampler struct {
	proc procfs.Proc
}

// NewProcSampler returns a sampler for the current process.
func NewProcSampler() (*ProcSampler, error) {
	proc, err := procfs.Self()
	if err != nil {
		return nil, fmt.Errorf("open /proc/self: %w", err)
	}
	if _, err := proc.Stat(); err != nil {
		return nil, fmt.Errorf("read /proc/self/stat: %w", err)
	}
	return &ProcSampler{proc: proc}, nil
}

// ResidentBytes returns the current RSS.
func (s *ProcSampler) ResidentBytes() (uint64, error) {
	stat, err := s.proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("read /proc/self/stat: %w", err)
	}
	return uint64(stat.ResidentMemory()), nil
}

// RuntimeSampler approximates resident memory from the Go runtime's view
// of memory obtained from the OS. Used where /proc is unavailable.
type RuntimeSampler struct{}

// ResidentBytes returns runtime.MemStats.Sys minus released heap.
func (RuntimeSampler) ResidentBytes() (uint64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys - ms.HeapReleased, nil
}

// NewSampler returns a ProcSampler when /proc is readable and a
// RuntimeSampler otherwise.
func NewSampler() Sampler {
	if s, err := NewProcSampler(); err == nil {
		return s
	}
	return RuntimeSampler{}
}
