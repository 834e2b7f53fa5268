// Package events decodes inbound hub frames into a closed set of event kinds
// and routes them by kind.
package events

import (
	"encoding/json"
	"fmt"

	"eufy-bridge/pkg/models"
)

// Kind is the decoded event variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindMotionDetected
	KindVideoChunk
	KindAudioChunk
	KindStreamError
	KindStreamStopped
)

// Hub kind strings, matched exactly.
const (
	wireMotionDetected = "motion detected"
	wireVideoData      = "livestream video data"
	wireAudioData      = "livestream audio data"
	wireStreamError    = "livestream error"
	wireStreamStopped  = "livestream stopped"
)

var kindByWire = map[string]Kind{
	wireMotionDetected: KindMotionDetected,
	wireVideoData:      KindVideoChunk,
	wireAudioData:      KindAudioChunk,
	wireStreamError:    KindStreamError,
	wireStreamStopped:  KindStreamStopped,
}

func (k Kind) String() string {
	switch k {
	case KindMotionDetected:
		return "motion-detected"
	case KindVideoChunk:
		return "video-chunk"
	case KindAudioChunk:
		return "audio-chunk"
	case KindStreamError:
		return "stream-error"
	case KindStreamStopped:
		return "stream-stopped"
	default:
		return "unknown"
	}
}

// Event is an immutable decoded hub event.
type Event struct {
	Kind   Kind
	Wire   string // raw kind string as sent by the hub
	Source string
	Serial string
	// State is the motion flag; only meaningful for KindMotionDetected.
	State   bool
	Payload []byte
}

// Decode parses a raw frame. It returns false for frames that are not
// "event" envelopes or cannot be parsed. Unrecognized kinds decode to
// KindUnknown with ok == true.
func Decode(raw []byte) (Event, bool) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, false
	}
	if env.Type != "event" || len(env.Event) == 0 {
		return Event{}, false
	}
	return decodeEvent(env.Event)
}

func decodeEvent(raw json.RawMessage) (Event, bool) {
	var he models.HubEvent
	if err := json.Unmarshal(raw, &he); err != nil {
		return Event{}, false
	}
	ev := Event{
		Kind:   kindByWire[he.Event],
		Wire:   he.Event,
		Source: he.Source,
		Serial: he.SerialNumber,
	}
	switch ev.Kind {
	case KindMotionDetected:
		ev.State = he.State != nil && *he.State
	case KindVideoChunk, KindAudioChunk:
		payload, err := bufferBytes(he.Buffer)
		if err != nil {
			return Event{}, false
		}
		ev.Payload = payload
	}
	return ev, true
}

func bufferBytes(b *models.Buffer) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	out := make([]byte, len(b.Data))
	for i, v := range b.Data {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("buffer byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// Router dispatches decoded events to per-kind handlers.
type Router struct {
	handlers map[Kind]func(Event)
	fallback func(Event)
}

// NewRouter returns an empty router. Events without a handler go to the
// fallback, which defaults to dropping them.
func NewRouter() *Router {
	return &Router{handlers: make(map[Kind]func(Event))}
}

// On registers the handler for kind, replacing any previous one.
func (r *Router) On(kind Kind, h func(Event)) *Router {
	r.handlers[kind] = h
	return r
}

// Fallback sets the handler for kinds with no registration, KindUnknown included.
func (r *Router) Fallback(h func(Event)) *Router {
	r.fallback = h
	return r
}

// Dispatch routes ev.
func (r *Router) Dispatch(ev Event) {
	if h, ok := r.handlers[ev.Kind]; ok && h != nil {
		h(ev)
		return
	}
	if r.fallback != nil {
		r.fallback(ev)
	}
}

// DispatchRaw decodes raw and dispatches it. It reports whether the frame
// decoded to an event.
func (r *Router) DispatchRaw(raw []byte) bool {
	ev, ok := Decode(raw)
	if !ok {
		return false
	}
	r.Dispatch(ev)
	return true
}
