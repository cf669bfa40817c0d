// Package audio provides the audio half of the ioguard validation gate:
// checking raw audio buffers before they reach a device or decoder.
//
// Three defenses apply:
//
//   - oversized buffers are rejected before any allocation downstream
//   - implausible format parameters and forged PCM headers are rejected
//   - at most a fixed number of buffers may be in flight at once
//
// Validation failures are reported, never fatal: a bad buffer is dropped
// and the stream continues with the next one.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dshills/ioguard/pkg/event"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxBufferSize is the largest audio buffer admitted, in bytes.
	DefaultMaxBufferSize = 100 * 1024 * 1024

	// DefaultMaxConcurrent is the number of buffers allowed in flight.
	DefaultMaxConcurrent = 10
)

// Sentinel errors for audio rejections. All are expected outcomes for
// adversarial input and match with errors.Is.
var (
	// ErrBufferTooLarge marks buffers at or above the size cap.
	ErrBufferTooLarge = errors.New("audio buffer too large")

	// ErrInvalidFormat marks out-of-range sample rate, channels, or depth.
	ErrInvalidFormat = errors.New("invalid audio format")

	// ErrMalformedHeader marks forged or truncated PCM/RIFF headers.
	ErrMalformedHeader = errors.New("malformed audio header")

	// ErrBufferLimit marks submissions past the concurrency cap; the
	// caller may retry once a slot frees.
	ErrBufferLimit = errors.New("concurrent audio buffer limit reached")
)

// Validator gates audio buffers by size, format, and concurrency.
//
// Thread-safe. The concurrency limiter is the only shared mutable state:
// a slot is taken on successful Submit and returned by Release.
type Validator struct {
	maxBufferSize int64
	maxConcurrent int64
	slots         *semaphore.Weighted
	inFlight      int64
	validations   uint64
	rejections    uint64
}

// NewValidator creates a validator with the default size cap and slot count.
func NewValidator() *Validator {
	v, _ := NewValidatorWithLimits(DefaultMaxBufferSize, DefaultMaxConcurrent)
	return v
}

// NewValidatorWithLimits creates a validator with explicit limits.
//
// Returns an error only for caller misuse (non-positive limits).
func NewValidatorWithLimits(maxBufferSize int64, maxConcurrent int64) (*Validator, error) {
	if maxBufferSize <= 0 {
		return nil, fmt.Errorf("max buffer size must be positive, got %d", maxBufferSize)
	}
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent buffers must be positive, got %d", maxConcurrent)
	}
	return &Validator{
		maxBufferSize: maxBufferSize,
		maxConcurrent: maxConcurrent,
		slots:         semaphore.NewWeighted(maxConcurrent),
	}, nil
}

// MaxConcurrent returns the configured slot count.
func (v *Validator) MaxConcurrent() int64 {
	return v.maxConcurrent
}

// InFlight returns the number of buffers currently holding a slot.
func (v *Validator) InFlight() int64 {
	return atomic.LoadInt64(&v.inFlight)
}

// ValidateBuffer checks buffer size and header plausibility without taking
// a concurrency slot.
func (v *Validator) ValidateBuffer(data []byte) error {
	atomic.AddUint64(&v.validations, 1)
	if err := v.checkBuffer(data); err != nil {
		atomic.AddUint64(&v.rejections, 1)
		return err
	}
	return nil
}

func (v *Validator) checkBuffer(data []byte) error {
	if int64(len(data)) >= v.maxBufferSize {
		return fmt.Errorf("%w: size %d exceeds maximum allowed size %d", ErrBufferTooLarge, len(data), v.maxBufferSize)
	}
	return sniffHeader(data)
}

// ValidateFormat checks explicit format parameters against sane ranges.
func (v *Validator) ValidateFormat(f Format) error {
	atomic.AddUint64(&v.validations, 1)
	if err := f.Validate(); err != nil {
		atomic.AddUint64(&v.rejections, 1)
		return err
	}
	return nil
}

// Submit validates an audio event and, on success, takes a concurrency
// slot that stays held until Release is called. Submissions past the slot
// count fail with ErrBufferLimit and take nothing.
func (v *Validator) Submit(ev *event.IOEvent) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	if ev.Type != event.TypeAudioInput {
		return fmt.Errorf("event %s is %s, not %s", ev.ID, ev.Type, event.TypeAudioInput)
	}

	if err := v.ValidateBuffer(ev.Data); err != nil {
		return err
	}

	if !v.slots.TryAcquire(1) {
		atomic.AddUint64(&v.rejections, 1)
		return fmt.Errorf("%w: %d buffers in flight", ErrBufferLimit, v.InFlight())
	}
	atomic.AddInt64(&v.inFlight, 1)
	return nil
}

// Release returns the slot taken by a successful Submit. Calling Release
// without a matching Submit is caller misuse and returns an error.
func (v *Validator) Release() error {
	for {
		current := atomic.LoadInt64(&v.inFlight)
		if current <= 0 {
			return fmt.Errorf("release without matching submit")
		}
		if atomic.CompareAndSwapInt64(&v.inFlight, current, current-1) {
			v.slots.Release(1)
			return nil
		}
	}
}

// ProcessAll submits a batch of audio events with fault isolation: a
// rejected event is reported through onError and processing continues with
// the next one. Returns the number of events admitted. Slots taken by
// admitted events stay held until Release.
//
// The context is checked between events so long batches stay cancellable.
func (v *Validator) ProcessAll(ctx context.Context, events []*event.IOEvent, onError func(*event.IOEvent, error)) int {
	admitted := 0
	for _, ev := range events {
		if ctx != nil && ctx.Err() != nil {
			return admitted
		}
		if err := v.Submit(ev); err != nil {
			if onError != nil {
				onError(ev, err)
			}
			continue
		}
		admitted++
	}
	return admitted
}

// Stats returns validation statistics for monitoring.
func (v *Validator) Stats() (validations, rejections uint64) {
	return atomic.LoadUint64(&v.validations), atomic.LoadUint64(&v.rejections)
}
