package observability

import (
	"os"
	"sync"

	"github.com/shirou/gopsutil/process"
)

// ProcessUsage is the resource usage of the client process itself.
type ProcessUsage struct {
	PID        int32   `json:"pid"`
	Status     string  `json:"status"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

var (
	selfOnce sync.Once
	self     *process.Process
	selfErr  error
)

// SampleProcess reads memory, CPU and OS status of the current process.
func SampleProcess() (ProcessUsage, error) {
	selfOnce.Do(func() {
		self, selfErr = process.NewProcess(int32(os.Getpid()))
	})
	if selfErr != nil {
		return ProcessUsage{}, selfErr
	}

	memInfo, err := self.MemoryInfo()
	if err != nil {
		return ProcessUsage{}, err
	}
	cpuPercent, err := self.CPUPercent()
	if err != nil {
		return ProcessUsage{}, err
	}
	status, err := self.Status()
	if err != nil {
		return ProcessUsage{}, err
	}
	return ProcessUsage{
		PID:        self.Pid,
		Status:     status,
		RSSBytes:   memInfo.RSS,
		CPUPercent: cpuPercent,
	}, nil
}
