// Package event defines the IOEvent envelope submitted to the validation gate.
//
// An IOEvent wraps a single unit of untrusted input (a file payload, an
// outbound network request body, an audio buffer, or a MIDI byte sequence)
// together with routing metadata. Events are constructed by upstream callers
// immediately before submission, are immutable once constructed, and are
// discarded after processing. Nothing in this package persists events.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type categorizes an IOEvent by the entry point it targets.
type Type string

const (
	// TypeFileIO is a file read or write payload
	TypeFileIO Type = "file_io"
	// TypeNetworkIO is an outbound or inbound network payload
	TypeNetworkIO Type = "network_io"
	// TypeAudioInput is a raw audio buffer
	TypeAudioInput Type = "audio_input"
	// TypeMidiInput is a raw MIDI byte sequence
	TypeMidiInput Type = "midi_input"
)

// Valid reports whether t is one of the defined event types.
func (t Type) Valid() bool {
	switch t {
	case TypeFileIO, TypeNetworkIO, TypeAudioInput, TypeMidiInput:
		return true
	}
	return false
}

// Metadata keys recognized by the gate.
const (
	// MetadataEndpoint carries the target endpoint for network events
	MetadataEndpoint = "Endpoint"
	// MetadataPath carries the target path for file events
	MetadataPath = "Path"
	// MetadataMode carries the file access mode, "read" or "write"
	MetadataMode = "Mode"
)

// File access modes for the MetadataMode key.
const (
	ModeRead  = "read"
	ModeWrite = "write"
)

// IOEvent is a single unit of untrusted input submitted to the gate.
//
// Construct events with New; the constructor assigns a unique ID and copies
// the metadata map so later mutation by the caller cannot alter the event.
// The Data slice is shared with the caller for efficiency and must not be
// modified after construction.
type IOEvent struct {
	// ID uniquely identifies this event (one per New call)
	ID string `json:"id"`

	// Type routes the event to the matching validator
	Type Type `json:"type"`

	// Data is the raw untrusted payload
	Data []byte `json:"-"`

	// Metadata carries per-event string attributes (e.g. "Endpoint")
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt records when the event was constructed
	CreatedAt time.Time `json:"created_at"`
}

// New creates an IOEvent of the given type.
//
// Returns an error only for caller misuse: an undefined event type. Empty
// data is allowed; some entry points (MIDI) legitimately see zero-length
// submissions and must reject them as malformed input, not as a constructor
// failure.
func New(eventType Type, data []byte, metadata map[string]string) (*IOEvent, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("unknown event type: %q", eventType)
	}

	var meta map[string]string
	if len(metadata) > 0 {
		meta = make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}

	return &IOEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Data:      data,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}, nil
}

// Endpoint returns the "Endpoint" metadata value, or "" if absent.
func (e *IOEvent) Endpoint() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[MetadataEndpoint]
}

// Path returns the "Path" metadata value, or "" if absent.
func (e *IOEvent) Path() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[MetadataPath]
}

// Mode returns the "Mode" metadata value, defaulting to ModeRead.
func (e *IOEvent) Mode() string {
	if e.Metadata == nil || e.Metadata[MetadataMode] == "" {
		return ModeRead
	}
	return e.Metadata[MetadataMode]
}

// Size returns the payload size in bytes.
func (e *IOEvent) Size() int {
	return len(e.Data)
}
