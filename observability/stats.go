// Package observability exposes the engine counters and the usage of the
// client process.
package observability

import (
	"sync/atomic"
)

// StatsSnapshot is a point in time copy of the counters
type StatsSnapshot struct {
	FramesIn          uint64 `json:"frames_in"`
	FramesOut         uint64 `json:"frames_out"`
	BytesIn           uint64 `json:"bytes_in"`
	BytesOut          uint64 `json:"bytes_out"`
	ProtocolErrors    uint64 `json:"protocol_errors"`
	Reconnects        uint64 `json:"reconnects"`
	DroppedCommands   uint64 `json:"dropped_commands"`
	Retransmissions   uint64 `json:"retransmissions"`
	DuplicatesSkipped uint64 `json:"duplicates_skipped"`
	SinkFailures      uint64 `json:"sink_failures"`
	WorkerRestarts    uint64 `json:"worker_restarts"`
	// Process is left zero by Stats.Snapshot, see SampleProcess.
	Process ProcessUsage `json:"process"`
}

// Stats holds atomic counters shared by the link goroutines and the engine
type Stats struct {
	framesIn        uint64
	framesOut       uint64
	bytesIn         uint64
	bytesOut        uint64
	protocolErrors  uint64
	reconnects      uint64
	droppedCommands uint64
	retransmissions uint64
	duplicates      uint64
	sinkFailures    uint64
	workerRestarts  uint64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncrFramesIn(bytes int) {
	atomic.AddUint64(&s.framesIn, 1)
	atomic.AddUint64(&s.bytesIn, uint64(bytes))
}

func (s *Stats) IncrFramesOut(bytes int) {
	atomic.AddUint64(&s.framesOut, 1)
	atomic.AddUint64(&s.bytesOut, uint64(bytes))
}

func (s *Stats) IncrProtocolErrors() {
	atomic.AddUint64(&s.protocolErrors, 1)
}

func (s *Stats) IncrReconnects() {
	atomic.AddUint64(&s.reconnects, 1)
}

func (s *Stats) IncrDroppedCommands() {
	atomic.AddUint64(&s.droppedCommands, 1)
}

func (s *Stats) AddRetransmissions(n int) {
	atomic.AddUint64(&s.retransmissions, uint64(n))
}

func (s *Stats) IncrDuplicates() {
	atomic.AddUint64(&s.duplicates, 1)
}

func (s *Stats) IncrSinkFailures() {
	atomic.AddUint64(&s.sinkFailures, 1)
}

func (s *Stats) IncrWorkerRestarts() {
	atomic.AddUint64(&s.workerRestarts, 1)
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesIn:          atomic.LoadUint64(&s.framesIn),
		FramesOut:         atomic.LoadUint64(&s.framesOut),
		BytesIn:           atomic.LoadUint64(&s.bytesIn),
		BytesOut:          atomic.LoadUint64(&s.bytesOut),
		ProtocolErrors:    atomic.LoadUint64(&s.protocolErrors),
		Reconnects:        atomic.LoadUint64(&s.reconnects),
		DroppedCommands:   atomic.LoadUint64(&s.droppedCommands),
		Retransmissions:   atomic.LoadUint64(&s.retransmissions),
		DuplicatesSkipped: atomic.LoadUint64(&s.duplicates),
		SinkFailures:      atomic.LoadUint64(&s.sinkFailures),
		WorkerRestarts:    atomic.LoadUint64(&s.workerRestarts),
	}
}
