package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequiredMissingRecordsError(t *testing.T) {
	p := NewParser([]byte(`{"device":"dev0"}`))
	sampleRate := Required[uint64](p, "sample_rate")
	assert.Equal(t, uint64(0), sampleRate)
	assert.False(t, p.Ok())
	assert.ErrorContains(t, p.Error(), "sample_rate")
}

func TestRequiredPresent(t *testing.T) {
	p := NewParser([]byte(`{"sample_rate": 200}`))
	assert.Equal(t, uint64(200), Required[uint64](p, "sample_rate"))
	assert.True(t, p.Ok())
}

func TestOptionalFallsBackToDefault(t *testing.T) {
	p := NewParser([]byte(`{}`))
	assert.Equal(t, "none", Optional(p, "timing_source", "none"))
	assert.True(t, p.Ok())
}

func TestIterAccumulatesChildErrors(t *testing.T) {
	p := NewParser([]byte(`{"channels": [{"port": 1, "line": 2}, {"line": 3}]}`))
	var ports []uint64
	Iter(p, "channels", func(i int, child *Parser) {
		ports = append(ports, Required[uint64](child, "port"))
	})
	assert.False(t, p.Ok())
	assert.ErrorContains(t, p.Error(), "channels[1].port")
}

func TestChildResolvesNestedObject(t *testing.T) {
	p := NewParser([]byte(`{"device": {"key": "dev0", "location": "10.0.0.1"}}`))
	child := p.Child("device")
	assert.Equal(t, "dev0", Required[string](child, "key"))
	assert.True(t, p.Ok())
}

func TestChildErrorsRecordedAfterReturnReachParent(t *testing.T) {
	p := NewParser([]byte(`{"device": {"location": "10.0.0.1"}}`))
	child := p.Child("device")
	assert.True(t, p.Ok())
	Required[string](child, "key")
	assert.False(t, p.Ok())
	assert.ErrorContains(t, p.Error(), "device.key")
}
