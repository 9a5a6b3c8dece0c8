package task

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/telem"
)

type fakeRunner struct {
	starts, stops int
	stopErr       error
}

func (f *fakeRunner) Start() error { f.starts++; return nil }
func (f *fakeRunner) Stop() error  { f.stops++; return f.stopErr }

func TestStopIsIdempotent(t *testing.T) {
	r := &fakeRunner{}
	b := NewBase(1, nil, nil, r)

	assert.NoError(t, b.Stop())
	assert.NoError(t, b.Stop())
	assert.Equal(t, 1, r.stops)
}

func TestExecDispatchesStartStop(t *testing.T) {
	r := &fakeRunner{}
	b := NewBase(1, nil, nil, r)

	assert.NoError(t, b.Exec(Command{Type: CommandStart}))
	assert.Equal(t, 1, r.starts)

	assert.NoError(t, b.Exec(Command{Type: CommandStop}))
	assert.Equal(t, 1, r.stops)
}

func TestExecDelegatesDomainCommands(t *testing.T) {
	var seen string
	b := NewBase(1, nil, func(cmd Command) error {
		seen = cmd.Type
		return nil
	})

	assert.NoError(t, b.Exec(Command{Type: "scan"}))
	assert.Equal(t, "scan", seen)
}

func TestStartWritesRunningStateRecord(t *testing.T) {
	var got ports.StateRecord
	ctx := &fakeCtx{onState: func(rec ports.StateRecord) { got = rec }}
	r := &fakeRunner{}
	b := NewBase(7, ctx, nil, r)

	assert.NoError(t, b.Start())
	assert.Equal(t, ports.StateRunning, got.Variant)
	assert.Equal(t, telem.TaskKey(7), got.Task)
	assert.Equal(t, true, got.Details["running"])
}

func TestStopWritesStateRecordWithRunningFalse(t *testing.T) {
	var got ports.StateRecord
	ctx := &fakeCtx{onState: func(rec ports.StateRecord) { got = rec }}
	b := NewBase(7, ctx, nil, &fakeRunner{})

	assert.NoError(t, b.Stop())
	assert.Equal(t, ports.StateSuccess, got.Variant)
	assert.Equal(t, false, got.Details["running"])
}

func TestExecAcksDomainCommand(t *testing.T) {
	var got ports.StateRecord
	ctx := &fakeCtx{onState: func(rec ports.StateRecord) { got = rec }}
	b := NewBase(7, ctx, func(cmd Command) error { return nil })

	assert.NoError(t, b.Exec(Command{Type: "scan"}))
	assert.Equal(t, ports.StateSuccess, got.Variant)
	assert.Equal(t, "scan", got.Details["command"])
}

type fakeCtx struct {
	onState func(ports.StateRecord)
}

func (f *fakeCtx) Client() ports.Client                  { return nil }
func (f *fakeCtx) Observability() ports.Observability    { return nil }
func (f *fakeCtx) SetState(rec ports.StateRecord) {
	if f.onState != nil {
		f.onState(rec)
	}
}

func TestConfigErrorKeysEveryError(t *testing.T) {
	rec := ConfigError(5, []error{
		assertErr("sample_rate: required field missing"),
		assertErr("stream_rate: must divide sample_rate"),
	})
	assert.Equal(t, 2, len(rec.Details))
	assert.Equal(t, "sample_rate: required field missing", rec.Details["error_0"])
}

type strError string

func (e strError) Error() string { return string(e) }

func assertErr(s string) error { return strError(s) }
