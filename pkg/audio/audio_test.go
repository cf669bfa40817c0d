package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/dshills/ioguard/pkg/event"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// buildWAV constructs a minimal WAVE buffer with the given header fields.
func buildWAV(format Format, fmtTag uint16, dataLen int) []byte {
	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], fmtTag)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(format.SampleRate))
	byteRate := format.SampleRate * format.Channels * format.BitDepth / 8
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(format.Channels*format.BitDepth/8))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(format.BitDepth))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	return buf
}

func audioEvent(t *testing.T, data []byte) *event.IOEvent {
	t.Helper()
	ev, err := event.New(event.TypeAudioInput, data, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"cd quality", Format{44100, 2, 16}, false},
		{"studio quality", Format{192000, 8, 24}, false},
		{"telephone quality", Format{8000, 1, 8}, false},
		{"zero sample rate", Format{0, 2, 16}, true},
		{"negative sample rate", Format{-44100, 2, 16}, true},
		{"sample rate too low", Format{4000, 2, 16}, true},
		{"sample rate too high", Format{384000, 2, 16}, true},
		{"zero channels", Format{44100, 0, 16}, true},
		{"negative channels", Format{44100, -1, 16}, true},
		{"too many channels", Format{44100, 64, 16}, true},
		{"odd bit depth", Format{44100, 2, 12}, true},
		{"zero bit depth", Format{44100, 2, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate(%+v) = nil error, want rejection", tt.format)
				}
				if !errors.Is(err, ErrInvalidFormat) {
					t.Errorf("error = %v, want ErrInvalidFormat", err)
				}
			} else if err != nil {
				t.Errorf("Validate(%+v) error = %v, want nil", tt.format, err)
			}
		})
	}
}

func TestValidateBuffer_SizeCap(t *testing.T) {
	v, err := NewValidatorWithLimits(1024, DefaultMaxConcurrent)
	if err != nil {
		t.Fatal(err)
	}

	if err := v.ValidateBuffer(make([]byte, 1023)); err != nil {
		t.Errorf("buffer under cap rejected: %v", err)
	}
	if err := v.ValidateBuffer(make([]byte, 1024)); !errors.Is(err, ErrBufferTooLarge) {
		t.Errorf("buffer at cap: error = %v, want ErrBufferTooLarge", err)
	}
}

func TestValidateBuffer_HeaderSniffing(t *testing.T) {
	v := NewValidator()
	cd := Format{44100, 2, 16}

	if err := v.ValidateBuffer(buildWAV(cd, 1, 256)); err != nil {
		t.Errorf("plausible WAV rejected: %v", err)
	}

	// Raw PCM without a header passes the sniffer.
	if err := v.ValidateBuffer([]byte{0x01, 0x02, 0x03, 0x04, 0x05}); err != nil {
		t.Errorf("headerless buffer rejected: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated RIFF", []byte("RIFF\x10\x00\x00\x00WAVE")},
		{"not WAVE", append([]byte("RIFF\x24\x00\x00\x00AVI "), make([]byte, 32)...)},
		{"unknown format tag", buildWAV(cd, 99, 64)},
		{"absurd sample rate", buildWAV(Format{9999999, 2, 16}, 1, 64)},
		{"zero channels", buildWAV(Format{44100, 0, 16}, 1, 64)},
		{"forged declared size", func() []byte {
			b := buildWAV(cd, 1, 64)
			binary.LittleEndian.PutUint32(b[4:8], 0xFFFFFF00)
			return b
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.ValidateBuffer(tt.data); !errors.Is(err, ErrMalformedHeader) {
				t.Errorf("error = %v, want ErrMalformedHeader", err)
			}
		})
	}
}

func TestSubmit_ConcurrencyLimit(t *testing.T) {
	v, err := NewValidatorWithLimits(DefaultMaxBufferSize, 10)
	if err != nil {
		t.Fatal(err)
	}

	// The first 10 submissions take slots; the 11th onward fail until a
	// slot is released.
	for i := 0; i < 10; i++ {
		if err := v.Submit(audioEvent(t, []byte("pcm"))); err != nil {
			t.Fatalf("submission %d error = %v, want nil", i+1, err)
		}
	}
	for i := 10; i < 15; i++ {
		if err := v.Submit(audioEvent(t, []byte("pcm"))); !errors.Is(err, ErrBufferLimit) {
			t.Fatalf("submission %d error = %v, want ErrBufferLimit", i+1, err)
		}
	}

	if got := v.InFlight(); got != 10 {
		t.Errorf("InFlight() = %d, want 10", got)
	}

	if err := v.Release(); err != nil {
		t.Fatal(err)
	}
	if err := v.Submit(audioEvent(t, []byte("pcm"))); err != nil {
		t.Errorf("submission after release error = %v, want nil", err)
	}

	for v.InFlight() > 0 {
		if err := v.Release(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRelease_WithoutSubmit(t *testing.T) {
	v := NewValidator()
	if err := v.Release(); err == nil {
		t.Error("Release() without Submit = nil error, want error")
	}
}

func TestSubmit_RejectedEventTakesNoSlot(t *testing.T) {
	v, err := NewValidatorWithLimits(16, 2)
	if err != nil {
		t.Fatal(err)
	}

	if err := v.Submit(audioEvent(t, make([]byte, 64))); !errors.Is(err, ErrBufferTooLarge) {
		t.Fatalf("oversized submit error = %v, want ErrBufferTooLarge", err)
	}
	if got := v.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d after rejected submit, want 0", got)
	}
}

func TestProcessAll_FaultIsolation(t *testing.T) {
	v, err := NewValidatorWithLimits(1024, 100)
	if err != nil {
		t.Fatal(err)
	}

	events := []*event.IOEvent{
		audioEvent(t, []byte("ok-1")),
		audioEvent(t, make([]byte, 4096)), // oversized, must not stop the batch
		audioEvent(t, []byte("ok-2")),
		audioEvent(t, buildWAV(Format{1, 0, 13}, 99, 8)), // forged header
		audioEvent(t, []byte("ok-3")),
	}

	var reported []error
	admitted := v.ProcessAll(context.Background(), events, func(_ *event.IOEvent, err error) {
		reported = append(reported, err)
	})

	if admitted != 3 {
		t.Errorf("admitted = %d, want 3", admitted)
	}
	if len(reported) != 2 {
		t.Fatalf("reported %d errors, want 2", len(reported))
	}
	if !errors.Is(reported[0], ErrBufferTooLarge) {
		t.Errorf("first report = %v, want ErrBufferTooLarge", reported[0])
	}
	if !errors.Is(reported[1], ErrMalformedHeader) {
		t.Errorf("second report = %v, want ErrMalformedHeader", reported[1])
	}

	for v.InFlight() > 0 {
		if err := v.Release(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSubmit_ConcurrentCallers(t *testing.T) {
	v, err := NewValidatorWithLimits(DefaultMaxBufferSize, 10)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var admitted int64
	var mu sync.Mutex

	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, err := event.New(event.TypeAudioInput, []byte("pcm"), nil)
			if err != nil {
				return
			}
			if err := v.Submit(ev); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Errorf("admitted = %d concurrent submissions, want exactly 10", admitted)
	}
	if got := v.InFlight(); got != 10 {
		t.Errorf("InFlight() = %d, want 10", got)
	}

	for v.InFlight() > 0 {
		if err := v.Release(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNewValidatorWithLimits_InvalidLimits(t *testing.T) {
	if _, err := NewValidatorWithLimits(0, 10); err == nil {
		t.Error("zero buffer size accepted, want error")
	}
	if _, err := NewValidatorWithLimits(1024, 0); err == nil {
		t.Error("zero slot count accepted, want error")
	}
	if _, err := NewValidatorWithLimits(1024, -5); err == nil {
		t.Error("negative slot count accepted, want error")
	}
}
