// Package gate routes I/O events through the matching validator and records
// the verdict.
//
// A Gate is built once from configuration and is safe for concurrent use.
// Policy rejections come back as values (an audit.Verdict with a rejected
// outcome); errors are reserved for caller misuse and infrastructure faults.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/ioguard/pkg/audio"
	"github.com/dshills/ioguard/pkg/audit"
	"github.com/dshills/ioguard/pkg/config"
	"github.com/dshills/ioguard/pkg/event"
	"github.com/dshills/ioguard/pkg/midi"
	"github.com/dshills/ioguard/pkg/network"
	"github.com/dshills/ioguard/pkg/policy"
	"github.com/dshills/ioguard/pkg/serialization"
	"github.com/dshills/ioguard/pkg/validation"
)

// Stats is a snapshot of gate counters.
type Stats struct {
	Processed uint64 `json:"processed"`
	Admitted  uint64 `json:"admitted"`
	Rejected  uint64 `json:"rejected"`
}

// Gate validates I/O events against per-type validators and configured
// policy rules.
type Gate struct {
	paths     *validation.PathValidator
	endpoints *network.EndpointValidator
	audio     *audio.Validator
	midi      *midi.Validator
	guard     *serialization.Guard
	engine    *policy.Engine
	trail     *audit.Trail
	store     *audit.Store
	logger    zerolog.Logger

	processed uint64
	admitted  uint64
	rejected  uint64
}

// Option configures optional gate collaborators.
type Option func(*Gate)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithStore enables persistent verdict recording. The gate does not own the
// store; the caller closes it.
func WithStore(store *audit.Store) Option {
	return func(g *Gate) { g.store = store }
}

// New builds a gate from configuration. Zero-valued limits in cfg fall back
// to package defaults.
func New(cfg config.GateConfig, opts ...Option) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	paths, err := validation.NewPathValidatorWithLimits(cfg.File.BasePath, cfg.File.MaxFileSize, cfg.File.MaxPathLength)
	if err != nil {
		return nil, fmt.Errorf("file validator: %w", err)
	}
	if len(cfg.File.BlockedExtensions) > 0 {
		paths.SetBlockedExtensions(cfg.File.BlockedExtensions)
	}

	endpoints, err := network.NewEndpointValidatorWithLimits(int64(cfg.Network.MaxPayloadSize), cfg.Network.BlockedPorts, cfg.Network.BlockedHosts)
	if err != nil {
		return nil, fmt.Errorf("network validator: %w", err)
	}

	audioV, err := audio.NewValidatorWithLimits(int64(cfg.Audio.MaxBufferSize), int64(cfg.Audio.MaxConcurrent))
	if err != nil {
		return nil, fmt.Errorf("audio validator: %w", err)
	}

	guard, err := serialization.NewGuardWithLimit(int64(cfg.Serialization.MaxSize))
	if err != nil {
		return nil, fmt.Errorf("serialization guard: %w", err)
	}

	engine, err := policy.NewEngine(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("policy engine: %w", err)
	}

	ringSize := cfg.Audit.RecentRejections
	if ringSize == 0 {
		ringSize = audit.DefaultRecentRejections
	}
	trail, err := audit.NewTrail(ringSize)
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}

	g := &Gate{
		paths:     paths,
		endpoints: endpoints,
		audio:     audioV,
		midi:      midi.NewValidator(),
		guard:     guard,
		engine:    engine,
		trail:     trail,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Process validates a single event. The returned verdict carries the
// decision; a non-nil error means validation itself could not run (nil
// event, unknown type), never a policy rejection.
func (g *Gate) Process(ctx context.Context, ev *event.IOEvent) (audit.Verdict, error) {
	if ev == nil {
		return audit.Verdict{}, fmt.Errorf("nil event")
	}
	if !ev.Type.Valid() {
		return audit.Verdict{}, fmt.Errorf("unknown event type: %q", ev.Type)
	}
	atomic.AddUint64(&g.processed, 1)

	v := audit.Verdict{
		EventID:   ev.ID,
		EventType: ev.Type,
		Size:      ev.Size(),
		Timestamp: time.Now().UTC(),
	}

	// Policy rules run first; a denied event never reaches a validator.
	denied, err := g.engine.Evaluate(ctx, ev)
	if err != nil {
		return audit.Verdict{}, fmt.Errorf("policy evaluation: %w", err)
	}
	if denied != "" {
		v.Outcome = audit.OutcomePolicyDenied
		v.Validator = "policy"
		v.Reason = denied
		g.record(v)
		return v, nil
	}

	switch ev.Type {
	case event.TypeFileIO:
		v.Validator = "filepath"
		var result validation.Result
		if ev.Mode() == event.ModeWrite {
			result = g.paths.ValidateWritePath(ev.Path())
		} else {
			result = g.paths.ValidateReadPath(ev.Path())
		}
		if !result.Valid {
			v.Outcome = audit.OutcomeRejected
			v.Reason = result.Message
		} else {
			v.Outcome = audit.OutcomeAdmitted
		}

	case event.TypeNetworkIO:
		v.Validator = "network"
		if err := g.endpoints.ProcessEvent(ev); err != nil {
			v.Outcome = audit.OutcomeRejected
			v.Reason = err.Error()
		} else {
			v.Outcome = audit.OutcomeAdmitted
		}

	case event.TypeAudioInput:
		// Submit holds a concurrency slot on success; callers pair every
		// admitted audio event with ReleaseAudioSlot.
		v.Validator = "audio"
		if err := g.audio.Submit(ev); err != nil {
			v.Outcome = audit.OutcomeRejected
			v.Reason = err.Error()
		} else {
			v.Outcome = audit.OutcomeAdmitted
		}

	case event.TypeMidiInput:
		v.Validator = "midi"
		messages, reports, err := g.midi.ProcessEvent(ev)
		if err != nil {
			return audit.Verdict{}, err
		}
		if len(messages) == 0 {
			v.Outcome = audit.OutcomeRejected
			v.Reason = fmt.Sprintf("no valid MIDI messages (%d malformed)", len(reports))
		} else {
			v.Outcome = audit.OutcomeAdmitted
			if len(reports) > 0 {
				v.Reason = fmt.Sprintf("%d malformed messages discarded", len(reports))
			}
		}
	}

	g.record(v)
	return v, nil
}

// ReleaseAudioSlot frees one audio concurrency slot held by an admitted
// audio event.
func (g *Gate) ReleaseAudioSlot() error {
	return g.audio.Release()
}

// ReadFile validates the path and reads the file through the configured
// limits.
func (g *Gate) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return g.paths.SafeReadFile(ctx, path)
}

// ValidateSerialized runs the serialization pre-flight for a JSON payload,
// with an optional JSON Schema.
func (g *Gate) ValidateSerialized(data []byte, schema []byte) error {
	if err := g.guard.ValidateJSON(data, schema); err != nil {
		return err
	}
	return nil
}

// ValidateXML runs the serialization pre-flight for an XML payload.
func (g *Gate) ValidateXML(data []byte) error {
	if err := g.guard.CheckSize(data); err != nil {
		return err
	}
	if err := g.guard.ScanContent(data); err != nil {
		return err
	}
	return g.guard.ValidateXML(data)
}

// RecentRejections returns up to n recent rejection verdicts, newest last.
func (g *Gate) RecentRejections(n int) []audit.Verdict {
	return g.trail.RecentRejections(n)
}

// Stats returns a snapshot of the gate counters.
func (g *Gate) Stats() Stats {
	return Stats{
		Processed: atomic.LoadUint64(&g.processed),
		Admitted:  atomic.LoadUint64(&g.admitted),
		Rejected:  atomic.LoadUint64(&g.rejected),
	}
}

func (g *Gate) record(v audit.Verdict) {
	if v.Outcome == audit.OutcomeAdmitted {
		atomic.AddUint64(&g.admitted, 1)
		g.logger.Debug().
			Str("event_id", v.EventID).
			Str("event_type", string(v.EventType)).
			Str("validator", v.Validator).
			Int("size", v.Size).
			Msg("event admitted")
	} else {
		atomic.AddUint64(&g.rejected, 1)
		g.trail.Record(v)
		g.logger.Warn().
			Str("event_id", v.EventID).
			Str("event_type", string(v.EventType)).
			Str("validator", v.Validator).
			Str("outcome", string(v.Outcome)).
			Str("reason", v.Reason).
			Int("size", v.Size).
			Msg("event rejected")
	}

	if g.store != nil {
		if err := g.store.Save(v); err != nil {
			// A full disk must not turn into dropped traffic; the verdict
			// stands and the failure is logged.
			g.logger.Error().Err(err).Str("event_id", v.EventID).Msg("failed to persist verdict")
		}
	}
}
