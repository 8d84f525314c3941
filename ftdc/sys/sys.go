// Package sys reports resource usage of a process as an ftdc statser.
package sys

import (
	"os"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/procfs"
)

// userHz is the clock tick rate of /proc stat times. Reading it properly needs
// sysconf(_SC_CLK_TCK) through cgo; 100 is the value on practically every linux system.
const userHz = 100

var (
	pageSize     = os.Getpagesize()
	bootTimeSecs = readBootTime()
)

func readBootTime() float64 {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0
	}
	st, err := fs.Stat()
	if err != nil {
		return 0
	}
	return float64(st.BootTime)
}

// Usage is the resource usage of a process.
type Usage struct {
	UserCPUSecs     float64
	SystemCPUSecs   float64
	ElapsedTimeSecs float64
	VssMB           float64
	RssMB           float64
}

// UsageStatser reads process usage from procfs.
type UsageStatser struct {
	proc  procfs.Proc
	clock clock.Clock
}

// NewSelfUsageStatser returns a statser for the current process.
func NewSelfUsageStatser() (*UsageStatser, error) {
	proc, err := procfs.Self()
	if err != nil {
		return nil, err
	}
	return &UsageStatser{proc: proc, clock: clock.New()}, nil
}

// Stats returns a Usage. Read errors produce a zero Usage so that captures keep going.
func (s *UsageStatser) Stats() any {
	st, err := s.proc.Stat()
	if err != nil {
		return Usage{}
	}
	startSecs := bootTimeSecs + float64(st.Starttime)/userHz
	nowSecs := float64(s.clock.Now().UnixNano()) / 1e9
	return Usage{
		UserCPUSecs:     float64(st.UTime) / userHz,
		SystemCPUSecs:   float64(st.STime) / userHz,
		ElapsedTimeSecs: nowSecs - startSecs,
		VssMB:           float64(st.VSize) / 1e6,
		RssMB:           float64(st.RSS*pageSize) / 1e6,
	}
}
