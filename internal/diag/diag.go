// Package diag feeds the Activity Monitor's periodic diagnostic print
// with process CPU/RSS, grounded on github.com/shirou/gopsutil/v3,
// present in several pack repos (adred-codev/ws_poc's server variants).
package diag

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Usage is a point-in-time process resource sample.
type Usage struct {
	CPUPercent float64
	RSSBytes   uint64
}

// Sampler wraps a handle to the running process so repeated CPU% samples
// are delta-based (gopsutil's Percent call needs a live *process.Process).
type Sampler struct {
	proc *process.Process
}

// NewSampler creates a Sampler for the current process. Returns a Sampler
// that reports zeroed usage if the process handle cannot be obtained
// (e.g. unsupported platform) rather than failing monitor startup.
func NewSampler() *Sampler {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &Sampler{}
	}
	return &Sampler{proc: p}
}

// Sample returns the current CPU% and RSS for the process.
func (s *Sampler) Sample() Usage {
	if s == nil || s.proc == nil {
		return Usage{}
	}
	cpuPct, _ := s.proc.CPUPercent()
	memInfo, err := s.proc.MemoryInfo()
	var rss uint64
	if err == nil && memInfo != nil {
		rss = memInfo.RSS
	}
	return Usage{CPUPercent: cpuPct, RSSBytes: rss}
}
