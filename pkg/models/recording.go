package models

import "time"

// EndReason records why a recording was finalized.
type EndReason string

const (
	EndStreamStopped EndReason = "stream-stopped"
	EndHardTimeout   EndReason = "hard-timeout"
	EndShutdown      EndReason = "shutdown"
	EndDisconnected  EndReason = "disconnected"
)

// Recording describes one finalized recording artifact.
type Recording struct {
	ID        int64     `json:"id,omitempty"`
	Path      string    `json:"path"`
	Serial    string    `json:"serial"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Bytes     int64     `json:"bytes"`
	Chunks    int       `json:"chunks"`
	Reason    EndReason `json:"reason"`
	Killed    bool      `json:"killed"` // encoder had to be force-terminated
}

// Duration is the wall time covered by the recording.
func (r Recording) Duration() time.Duration {
	if r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
