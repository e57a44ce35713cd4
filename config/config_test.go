package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/sdr"
	"pipelined.dev/sdr/config"
)

const document = `
input:
  kind: tone
  frequency: 1000
  sample_rate: 200000
decimation: 2
iq_correction: true
fft:
  size: 512
listen: 127.0.0.1:8080
modules:
  - name: fm
    type: recorder
    vfo:
      offset: -25000
      bandwidth: 12500
      sample_rate: 48000
    options:
      mode: fm
      path: fm.wav
  - name: usb
    type: recorder
    vfo:
      offset: 10000
      bandwidth: 3000
      sample_rate: 8000
      reference: lower
`

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte(document))
	require.NoError(t, err)
	assert.Equal(t, config.InputTone, cfg.Input.Kind)
	assert.Equal(t, 200000.0, cfg.Input.SampleRate)
	assert.Equal(t, 2, cfg.Decimation)
	assert.True(t, cfg.IQCorrection)
	assert.Equal(t, config.FFT{Size: 512, Rate: config.DefaultFFTRate}, cfg.FFT)
	require.Len(t, cfg.Modules, 2)
	assert.Equal(t, config.VFO{Offset: -25000, Bandwidth: 12500, SampleRate: 48000}, cfg.Modules[0].VFO)
	assert.Equal(t, "fm", cfg.Modules[0].Option("mode", "iq"))
	assert.Equal(t, "iq", cfg.Modules[1].Option("mode", "iq"))
	assert.Equal(t, "lower", cfg.Modules[1].VFO.Reference)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		doc   string
		count int
	}{
		{doc: "input: {kind: wav}", count: 1},
		{doc: "input: {kind: sdr}", count: 1},
		{doc: "input: {kind: tone, sample_rate: -1}", count: 1},
		{doc: "input: {kind: tone}\ndecimation: -2", count: 1},
		{doc: "input: {kind: tone}\nfft: {size: -1}", count: 1},
		{
			doc: `
input: {kind: tone}
modules:
  - {name: a, type: recorder, vfo: {sample_rate: 8000, reference: side}}
  - {name: a, vfo: {sample_rate: 0, bandwidth: -1}}
`,
			count: 5,
		},
	}
	for _, test := range tests {
		_, err := config.Parse([]byte(test.doc))
		require.Error(t, err, test.doc)
		assert.ErrorIs(t, err, config.ErrInvalid)
		var errs sdr.Errors
		require.ErrorAs(t, err, &errs)
		assert.Len(t, errs, test.count, test.doc)
	}
}

func TestSaveLoad(t *testing.T) {
	cfg, err := config.Parse([]byte(document))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "sdr.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte("input: {kind: tone}"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSampleRate, cfg.Input.SampleRate)
	assert.Equal(t, 1, cfg.Decimation)
	assert.Zero(t, cfg.FFT.Size)
	assert.Zero(t, cfg.FFT.Rate)
}
