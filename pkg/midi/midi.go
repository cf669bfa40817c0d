// Package midi provides the MIDI half of the ioguard validation gate:
// checking raw MIDI byte sequences before they are interpreted as musical
// events.
//
// Malformed input never crashes the handler. A bad message (invalid status
// byte, truncated multi-byte message, out-of-range data byte) is discarded
// and reported, and parsing continues with the next message. Out-of-range
// structured values are rejected, never clamped: a clamped value would
// fabricate musical data the sender did not produce.
//
// A Note-On with velocity zero is translated to Note-Off, as the MIDI
// specification defines, and is not an error.
package midi

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dshills/ioguard/pkg/event"
)

// MaxDataValue is the largest legal MIDI data byte value.
const MaxDataValue = 0x7F

// Sentinel errors for MIDI rejections.
var (
	// ErrMalformedMessage marks truncated or structurally invalid messages.
	ErrMalformedMessage = errors.New("malformed MIDI message")

	// ErrDataOutOfRange marks data values outside 0..127.
	ErrDataOutOfRange = errors.New("MIDI data value out of range")
)

// Kind identifies the musical meaning of a parsed message.
type Kind string

const (
	KindNoteOff         Kind = "note_off"
	KindNoteOn          Kind = "note_on"
	KindPolyPressure    Kind = "poly_pressure"
	KindControlChange   Kind = "control_change"
	KindProgramChange   Kind = "program_change"
	KindChannelPressure Kind = "channel_pressure"
	KindPitchBend       Kind = "pitch_bend"
	KindSystemExclusive Kind = "system_exclusive"
	KindSystemCommon    Kind = "system_common"
	KindSystemRealTime  Kind = "system_real_time"
)

// Message is a single validated MIDI message.
type Message struct {
	Kind    Kind
	Status  byte
	Channel byte // 0..15 for channel messages, 0 otherwise
	Data1   byte
	Data2   byte
	// Raw holds the original bytes, including any SysEx payload
	Raw []byte
}

// Report describes one discarded message within a byte sequence.
type Report struct {
	Offset int    // Byte offset where the bad message started
	Reason string // Why the message was discarded
}

// Error implements the error interface so reports can travel as errors.
func (r Report) Error() string {
	return fmt.Sprintf("%v at offset %d: %s", ErrMalformedMessage, r.Offset, r.Reason)
}

// Unwrap exposes the malformed-message class for errors.Is.
func (r Report) Unwrap() error {
	return ErrMalformedMessage
}

// channelDataLen returns the number of data bytes for a channel status
// byte, or -1 if the status is not a channel message.
func channelDataLen(status byte) int {
	switch status & 0xF0 {
	case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
		return 2
	case 0xC0, 0xD0:
		return 1
	}
	return -1
}

// kindForStatus maps a channel status byte to its Kind.
func kindForStatus(status byte) Kind {
	switch status & 0xF0 {
	case 0x80:
		return KindNoteOff
	case 0x90:
		return KindNoteOn
	case 0xA0:
		return KindPolyPressure
	case 0xB0:
		return KindControlChange
	case 0xC0:
		return KindProgramChange
	case 0xD0:
		return KindChannelPressure
	default:
		return KindPitchBend
	}
}

// Validator parses and gates raw MIDI byte sequences.
//
// Stateless per call and safe for concurrent use; the only mutable state
// is a pair of atomic counters.
type Validator struct {
	validations uint64
	rejections  uint64
}

// NewValidator creates a MIDI validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateNote checks a structured note/velocity pair. Values outside
// 0..127 are rejected with ErrDataOutOfRange.
func (v *Validator) ValidateNote(note, velocity int) error {
	atomic.AddUint64(&v.validations, 1)
	if note < 0 || note > MaxDataValue {
		atomic.AddUint64(&v.rejections, 1)
		return fmt.Errorf("%w: note %d outside 0..%d", ErrDataOutOfRange, note, MaxDataValue)
	}
	if velocity < 0 || velocity > MaxDataValue {
		atomic.AddUint64(&v.rejections, 1)
		return fmt.Errorf("%w: velocity %d outside 0..%d", ErrDataOutOfRange, velocity, MaxDataValue)
	}
	return nil
}

// ValidateController checks a structured controller/value pair.
func (v *Validator) ValidateController(controller, value int) error {
	atomic.AddUint64(&v.validations, 1)
	if controller < 0 || controller > MaxDataValue {
		atomic.AddUint64(&v.rejections, 1)
		return fmt.Errorf("%w: controller %d outside 0..%d", ErrDataOutOfRange, controller, MaxDataValue)
	}
	if value < 0 || value > MaxDataValue {
		atomic.AddUint64(&v.rejections, 1)
		return fmt.Errorf("%w: controller value %d outside 0..%d", ErrDataOutOfRange, value, MaxDataValue)
	}
	return nil
}

// Parse walks a raw MIDI byte sequence and returns the valid messages plus
// a report for every discarded one. Parsing always runs to the end of the
// input; malformed bytes are isolated, not fatal.
//
// Running status is honored: a data byte arriving while a channel status
// is active starts a new message under that status. A Note-On with
// velocity zero comes back as KindNoteOff.
func (v *Validator) Parse(data []byte) ([]Message, []Report) {
	atomic.AddUint64(&v.validations, 1)

	var messages []Message
	var reports []Report

	if len(data) == 0 {
		atomic.AddUint64(&v.rejections, 1)
		return nil, []Report{{Offset: 0, Reason: "empty MIDI input"}}
	}

	running := byte(0)
	i := 0
	for i < len(data) {
		b := data[i]
		switch {
		case b >= 0xF8:
			// System Real-Time: single byte, may interleave anywhere.
			messages = append(messages, Message{
				Kind:   KindSystemRealTime,
				Status: b,
				Raw:    data[i : i+1],
			})
			i++

		case b == 0xF0:
			msg, consumed, rep := parseSysEx(data, i)
			if rep != nil {
				reports = append(reports, *rep)
			} else {
				messages = append(messages, msg)
			}
			i += consumed
			running = 0

		case b >= 0xF1:
			msg, consumed, rep := parseSystemCommon(data, i)
			if rep != nil {
				reports = append(reports, *rep)
			} else {
				messages = append(messages, msg)
			}
			i += consumed
			running = 0

		case b >= 0x80:
			msg, consumed, rep := parseChannelMessage(data, i, b)
			if rep != nil {
				reports = append(reports, *rep)
			} else {
				messages = append(messages, msg)
				running = b
			}
			i += consumed

		default:
			// Data byte in status position: legal only under running status.
			if running == 0 {
				reports = append(reports, Report{
					Offset: i,
					Reason: fmt.Sprintf("data byte 0x%02X without a status byte", b),
				})
				i++
				continue
			}
			msg, consumed, rep := parseRunningStatus(data, i, running)
			if rep != nil {
				reports = append(reports, *rep)
			} else {
				messages = append(messages, msg)
			}
			i += consumed
		}
	}

	if len(reports) > 0 {
		atomic.AddUint64(&v.rejections, 1)
	}
	return messages, reports
}

// ProcessEvent parses a MIDI IOEvent. Malformed content is reported, not
// returned as an error; errors mark caller misuse only.
func (v *Validator) ProcessEvent(ev *event.IOEvent) ([]Message, []Report, error) {
	if ev == nil {
		return nil, nil, fmt.Errorf("nil event")
	}
	if ev.Type != event.TypeMidiInput {
		return nil, nil, fmt.Errorf("event %s is %s, not %s", ev.ID, ev.Type, event.TypeMidiInput)
	}
	messages, reports := v.Parse(ev.Data)
	return messages, reports, nil
}

// Stats returns validation statistics for monitoring.
func (v *Validator) Stats() (validations, rejections uint64) {
	return atomic.LoadUint64(&v.validations), atomic.LoadUint64(&v.rejections)
}

// parseChannelMessage reads a full channel message starting at offset i.
func parseChannelMessage(data []byte, i int, status byte) (Message, int, *Report) {
	n := channelDataLen(status)
	if len(data)-i-1 < n {
		return Message{}, len(data) - i, &Report{
			Offset: i,
			Reason: fmt.Sprintf("truncated message: status 0x%02X needs %d data bytes, got %d", status, n, len(data)-i-1),
		}
	}

	// A byte with the high bit set in a data position is out of range; the
	// parser resyncs at that byte so a following message still parses.
	for k := 1; k <= n; k++ {
		if data[i+k] > MaxDataValue {
			return Message{}, k, &Report{
				Offset: i,
				Reason: fmt.Sprintf("data byte 0x%02X out of range in message with status 0x%02X", data[i+k], status),
			}
		}
	}

	d1 := data[i+1]
	var d2 byte
	if n == 2 {
		d2 = data[i+2]
	}

	msg := Message{
		Kind:    kindForStatus(status),
		Status:  status,
		Channel: status & 0x0F,
		Data1:   d1,
		Data2:   d2,
		Raw:     data[i : i+n+1],
	}
	// Velocity-zero Note-On means Note-Off per the MIDI specification.
	if msg.Kind == KindNoteOn && msg.Data2 == 0 {
		msg.Kind = KindNoteOff
	}
	return msg, n + 1, nil
}

// parseRunningStatus reads data bytes under an active running status.
func parseRunningStatus(data []byte, i int, status byte) (Message, int, *Report) {
	n := channelDataLen(status)
	if len(data)-i < n {
		return Message{}, len(data) - i, &Report{
			Offset: i,
			Reason: fmt.Sprintf("truncated running-status message under 0x%02X", status),
		}
	}

	for k := 0; k < n; k++ {
		if data[i+k] > MaxDataValue {
			return Message{}, max(k, 1), &Report{
				Offset: i,
				Reason: fmt.Sprintf("data byte 0x%02X out of range under running status 0x%02X", data[i+k], status),
			}
		}
	}

	d1 := data[i]
	var d2 byte
	if n == 2 {
		d2 = data[i+1]
	}

	msg := Message{
		Kind:    kindForStatus(status),
		Status:  status,
		Channel: status & 0x0F,
		Data1:   d1,
		Data2:   d2,
		Raw:     data[i : i+n],
	}
	if msg.Kind == KindNoteOn && msg.Data2 == 0 {
		msg.Kind = KindNoteOff
	}
	return msg, n, nil
}

// parseSysEx reads a System Exclusive message starting at offset i.
func parseSysEx(data []byte, i int) (Message, int, *Report) {
	for j := i + 1; j < len(data); j++ {
		b := data[j]
		if b == 0xF7 {
			return Message{
				Kind:   KindSystemExclusive,
				Status: 0xF0,
				Raw:    data[i : j+1],
			}, j + 1 - i, nil
		}
		if b >= 0x80 && b < 0xF8 {
			// A non-real-time status inside SysEx aborts the message.
			return Message{}, j - i, &Report{
				Offset: i,
				Reason: fmt.Sprintf("system exclusive interrupted by status 0x%02X", b),
			}
		}
	}
	return Message{}, len(data) - i, &Report{
		Offset: i,
		Reason: "unterminated system exclusive message",
	}
}

// systemCommonDataLen maps System Common status bytes to data lengths;
// 0xF4 and 0xF5 are undefined and always malformed.
func systemCommonDataLen(status byte) (int, bool) {
	switch status {
	case 0xF1, 0xF3:
		return 1, true
	case 0xF2:
		return 2, true
	case 0xF6, 0xF7:
		return 0, true
	}
	return 0, false
}

// parseSystemCommon reads a System Common message starting at offset i.
func parseSystemCommon(data []byte, i int) (Message, int, *Report) {
	status := data[i]
	n, ok := systemCommonDataLen(status)
	if !ok {
		return Message{}, 1, &Report{
			Offset: i,
			Reason: fmt.Sprintf("undefined status byte 0x%02X", status),
		}
	}
	if len(data)-i-1 < n {
		return Message{}, len(data) - i, &Report{
			Offset: i,
			Reason: fmt.Sprintf("truncated system common message with status 0x%02X", status),
		}
	}
	for k := 1; k <= n; k++ {
		if data[i+k] > MaxDataValue {
			return Message{}, n + 1, &Report{
				Offset: i,
				Reason: fmt.Sprintf("data byte out of range in system common message 0x%02X", status),
			}
		}
	}
	return Message{
		Kind:   KindSystemCommon,
		Status: status,
		Raw:    data[i : i+n+1],
	}, n + 1, nil
}
