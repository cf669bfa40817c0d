package audio

import (
	"encoding/binary"
	"fmt"
)

// Sane parameter ranges for incoming audio. Values outside these ranges are
// rejected and reported; they never crash the pipeline.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxChannels   = 32
)

// validBitDepths are the accepted sample widths.
var validBitDepths = map[int]bool{8: true, 16: true, 24: true, 32: true}

// Format describes the parameters of an audio buffer.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Validate checks the format against the accepted ranges.
//
// Returns an error wrapping ErrInvalidFormat naming the first offending
// parameter; nil if the format is sane.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.SampleRate < MinSampleRate || f.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: sample rate %d outside %d..%d", ErrInvalidFormat, f.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channel count must be positive, got %d", ErrInvalidFormat, f.Channels)
	}
	if f.Channels > MaxChannels {
		return fmt.Errorf("%w: channel count %d exceeds maximum %d", ErrInvalidFormat, f.Channels, MaxChannels)
	}
	if !validBitDepths[f.BitDepth] {
		return fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidFormat, f.BitDepth)
	}
	return nil
}

// sniffHeader rejects buffers that announce a RIFF/WAVE encoding but carry
// an implausible header. Raw PCM without a header passes; the format checks
// cover it separately.
func sniffHeader(data []byte) error {
	if len(data) < 4 || string(data[:4]) != "RIFF" {
		return nil
	}

	// A RIFF prelude this short cannot hold the WAVE format chunk.
	if len(data) < 44 {
		return fmt.Errorf("%w: RIFF header truncated at %d bytes", ErrMalformedHeader, len(data))
	}
	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("%w: RIFF container is not WAVE", ErrMalformedHeader)
	}
	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("%w: missing fmt chunk", ErrMalformedHeader)
	}

	// Declared RIFF size wildly different from the actual buffer means the
	// header was forged or the buffer truncated.
	declared := int64(binary.LittleEndian.Uint32(data[4:8])) + 8
	actual := int64(len(data))
	if declared > actual*2 || declared < 44 {
		return fmt.Errorf("%w: declared size %d implausible for %d-byte buffer", ErrMalformedHeader, declared, actual)
	}

	audioFormat := int(binary.LittleEndian.Uint16(data[20:22]))
	switch audioFormat {
	case 1, 3, 6, 7, 0xFFFE: // PCM, IEEE float, A-law, mu-law, extensible
	default:
		return fmt.Errorf("%w: unknown audio format tag %d", ErrMalformedHeader, audioFormat)
	}

	header := Format{
		SampleRate: int(binary.LittleEndian.Uint32(data[24:28])),
		Channels:   int(binary.LittleEndian.Uint16(data[22:24])),
		BitDepth:   int(binary.LittleEndian.Uint16(data[34:36])),
	}
	if err := header.Validate(); err != nil {
		return fmt.Errorf("%w: header declares invalid format: %v", ErrMalformedHeader, err)
	}
	return nil
}
