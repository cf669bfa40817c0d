package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ioguard/pkg/audit"
	"github.com/dshills/ioguard/pkg/config"
	"github.com/dshills/ioguard/pkg/event"
	"github.com/dshills/ioguard/pkg/policy"
)

func newTestGate(t *testing.T, mutate func(*config.GateConfig), opts ...Option) (*Gate, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(dir)
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := New(cfg, opts...)
	require.NoError(t, err)
	return g, dir
}

func fileEvent(t *testing.T, path, mode string) *event.IOEvent {
	t.Helper()
	ev, err := event.New(event.TypeFileIO, nil, map[string]string{
		event.MetadataPath: path,
		event.MetadataMode: mode,
	})
	require.NoError(t, err)
	return ev
}

func TestProcess_FileRead(t *testing.T) {
	g, dir := newTestGate(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))

	v, err := g.Process(context.Background(), fileEvent(t, "notes.txt", event.ModeRead))
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeAdmitted, v.Outcome)
	assert.Equal(t, "filepath", v.Validator)

	v, err = g.Process(context.Background(), fileEvent(t, "../../etc/passwd", event.ModeRead))
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeRejected, v.Outcome)
	assert.Contains(t, v.Reason, "path traversal")
}

func TestProcess_FileWrite(t *testing.T) {
	g, _ := newTestGate(t, nil)

	v, err := g.Process(context.Background(), fileEvent(t, "report.txt", event.ModeWrite))
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeAdmitted, v.Outcome)

	v, err = g.Process(context.Background(), fileEvent(t, "payload.exe", event.ModeWrite))
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeRejected, v.Outcome)
}

func TestProcess_Network(t *testing.T) {
	g, _ := newTestGate(t, nil)

	ev, err := event.New(event.TypeNetworkIO, []byte("payload"), map[string]string{
		event.MetadataEndpoint: "https://api.example.com/v1/data",
	})
	require.NoError(t, err)
	v, err := g.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeAdmitted, v.Outcome)

	ev, err = event.New(event.TypeNetworkIO, nil, map[string]string{
		event.MetadataEndpoint: "ftp://files.example.com/data",
	})
	require.NoError(t, err)
	v, err = g.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeRejected, v.Outcome)
	assert.Equal(t, "network", v.Validator)
}

func TestProcess_AudioSlots(t *testing.T) {
	g, _ := newTestGate(t, func(cfg *config.GateConfig) {
		cfg.Audio.MaxConcurrent = 2
	})

	admit := func() audit.Outcome {
		ev, err := event.New(event.TypeAudioInput, []byte("pcm"), nil)
		require.NoError(t, err)
		v, err := g.Process(context.Background(), ev)
		require.NoError(t, err)
		return v.Outcome
	}

	assert.Equal(t, audit.OutcomeAdmitted, admit())
	assert.Equal(t, audit.OutcomeAdmitted, admit())
	assert.Equal(t, audit.OutcomeRejected, admit())

	require.NoError(t, g.ReleaseAudioSlot())
	assert.Equal(t, audit.OutcomeAdmitted, admit())
}

func TestProcess_Midi(t *testing.T) {
	g, _ := newTestGate(t, nil)

	ev, err := event.New(event.TypeMidiInput, []byte{0x90, 0x3C, 0x64}, nil)
	require.NoError(t, err)
	v, err := g.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeAdmitted, v.Outcome)

	ev, err = event.New(event.TypeMidiInput, []byte{0x3C, 0x64}, nil)
	require.NoError(t, err)
	v, err = g.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeRejected, v.Outcome)
	assert.Equal(t, "midi", v.Validator)
}

func TestProcess_PolicyDenied(t *testing.T) {
	g, _ := newTestGate(t, func(cfg *config.GateConfig) {
		cfg.Rules = []policy.Rule{
			{Name: "no-large-network", Expression: `type == "network_io" && size > 16`},
		}
	})

	ev, err := event.New(event.TypeNetworkIO, make([]byte, 64), map[string]string{
		event.MetadataEndpoint: "https://api.example.com",
	})
	require.NoError(t, err)
	v, err := g.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomePolicyDenied, v.Outcome)
	assert.Equal(t, "no-large-network", v.Reason)
}

func TestProcess_CallerErrors(t *testing.T) {
	g, _ := newTestGate(t, nil)

	_, err := g.Process(context.Background(), nil)
	assert.Error(t, err)

	_, err = g.Process(context.Background(), &event.IOEvent{ID: "x", Type: "bogus"})
	assert.Error(t, err)
}

func TestRecentRejectionsAndStats(t *testing.T) {
	g, dir := newTestGate(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.txt"), []byte("x"), 0644))

	_, err := g.Process(context.Background(), fileEvent(t, "ok.txt", event.ModeRead))
	require.NoError(t, err)
	_, err = g.Process(context.Background(), fileEvent(t, "..\\..\\windows\\system32", event.ModeRead))
	require.NoError(t, err)

	stats := g.Stats()
	assert.Equal(t, uint64(2), stats.Processed)
	assert.Equal(t, uint64(1), stats.Admitted)
	assert.Equal(t, uint64(1), stats.Rejected)

	recent := g.RecentRejections(10)
	require.Len(t, recent, 1)
	assert.Equal(t, audit.OutcomeRejected, recent[0].Outcome)
}

func TestProcess_PersistsVerdicts(t *testing.T) {
	dir := t.TempDir()
	store, err := audit.NewStoreWithPath(filepath.Join(dir, "verdicts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	g, _ := newTestGate(t, nil, WithStore(store))

	ev, err := event.New(event.TypeNetworkIO, nil, map[string]string{
		event.MetadataEndpoint: "file:///etc/passwd",
	})
	require.NoError(t, err)
	_, err = g.Process(context.Background(), ev)
	require.NoError(t, err)

	saved, err := store.List(audit.ListOptions{EventID: ev.ID})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, audit.OutcomeRejected, saved[0].Outcome)
}

func TestValidateSerialized(t *testing.T) {
	g, _ := newTestGate(t, nil)

	assert.NoError(t, g.ValidateSerialized([]byte(`{"name":"doc"}`), nil))
	assert.Error(t, g.ValidateSerialized([]byte(`{"x":"<script>alert(1)</script>"}`), nil))
	assert.Error(t, g.ValidateXML([]byte(`<!DOCTYPE r [<!ENTITY x SYSTEM "file:///etc/passwd">]><r>&x;</r>`)))
	assert.NoError(t, g.ValidateXML([]byte(`<settings><gain>0.8</gain></settings>`)))
}
