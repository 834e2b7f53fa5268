package models

import "encoding/json"

// Envelope is the outer frame of every inbound hub message.
// Only Type == "event" carries device events; "result" frames answer commands.
type Envelope struct {
	Type      string          `json:"type"`
	MessageID string          `json:"messageId,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	ErrorCode string          `json:"errorCode,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// HubEvent is the inner event object of an "event" envelope.
type HubEvent struct {
	Source       string  `json:"source,omitempty"` // "device", "station", "driver"
	Event        string  `json:"event"`            // kind string, e.g. "motion detected"
	SerialNumber string  `json:"serialNumber,omitempty"`
	State        *bool   `json:"state,omitempty"`
	Buffer       *Buffer `json:"buffer,omitempty"`
}

// Buffer mirrors a serialized Node.js Buffer: {"type":"Buffer","data":[...]}.
type Buffer struct {
	Type string `json:"type,omitempty"`
	Data []int  `json:"data"`
}
