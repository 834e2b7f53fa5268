package models

// RecordingNotice is the JSON body POSTed to the notification webhook.
type RecordingNotice struct {
	Event     string    `json:"event"` // always "recording.finished"
	Recording Recording `json:"recording"`
	Seconds   float64   `json:"seconds"`
}
