// Package serialization provides pre-flight checks run before JSON or XML
// payloads reach a (de)serializer.
//
// Three gates apply, in order:
//
//   - size: serialization targets past the threshold are rejected up front
//   - content: script injection, template injection, traversal strings, and
//     embedded NUL bytes are flagged inside otherwise well-formed documents
//   - structure: XML declaring internal or external entities is rejected at
//     parse time and entity content is never resolved; JSON can optionally
//     be held against a schema
//
// All rejections are error values carrying a sentinel class for errors.Is.
package serialization

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// DefaultMaxSerializedSize is the largest payload admitted to a
// serializer, in bytes.
const DefaultMaxSerializedSize = 100 * 1024 * 1024

// Sentinel errors for serialization rejections.
var (
	// ErrTooLarge marks payloads at or above the size threshold.
	ErrTooLarge = errors.New("serialization target too large")

	// ErrHostileContent marks payloads carrying injection patterns.
	ErrHostileContent = errors.New("hostile content in serialization target")

	// ErrEntityDeclaration marks XML declaring internal, external, or
	// parameter entities.
	ErrEntityDeclaration = errors.New("XML entity declaration not allowed")

	// ErrSchemaViolation marks JSON that fails its declared schema.
	ErrSchemaViolation = errors.New("schema violation")
)

// Guard runs the pre-flight checks. Thread-safe; the only mutable state is
// a pair of atomic counters.
type Guard struct {
	maxSize     int64
	validations uint64
	rejections  uint64
}

// NewGuard creates a guard with the default size threshold.
func NewGuard() *Guard {
	g, _ := NewGuardWithLimit(DefaultMaxSerializedSize)
	return g
}

// NewGuardWithLimit creates a guard with an explicit size threshold.
//
// Returns an error only for caller misuse (non-positive threshold).
func NewGuardWithLimit(maxSize int64) (*Guard, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max serialized size must be positive, got %d", maxSize)
	}
	return &Guard{maxSize: maxSize}, nil
}

// MaxSize returns the configured threshold in bytes.
func (g *Guard) MaxSize() int64 {
	return g.maxSize
}

// CheckSize rejects payloads at or above the threshold before any parsing.
func (g *Guard) CheckSize(data []byte) error {
	atomic.AddUint64(&g.validations, 1)
	if int64(len(data)) >= g.maxSize {
		atomic.AddUint64(&g.rejections, 1)
		return fmt.Errorf("%w: payload of %d bytes is too large to serialize (limit %d)",
			ErrTooLarge, len(data), g.maxSize)
	}
	return nil
}

// Stats returns validation statistics for monitoring.
func (g *Guard) Stats() (validations, rejections uint64) {
	return atomic.LoadUint64(&g.validations), atomic.LoadUint64(&g.rejections)
}
