package htk

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeHTK builds an HTK byte stream with the given per-band sample rows.
func encodeHTK(t *testing.T, samplePeriod int32, data [][]float32) []byte {
	t.Helper()

	bands := len(data)
	frames := 0
	if bands > 0 {
		frames = len(data[0])
	}

	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.BigEndian, int32(frames)))
	require.NoError(t, binary.Write(buf, binary.BigEndian, samplePeriod))
	require.NoError(t, binary.Write(buf, binary.BigEndian, int16(bands*4)))
	require.NoError(t, binary.Write(buf, binary.BigEndian, int16(0)))
	for f := 0; f < frames; f++ {
		for b := 0; b < bands; b++ {
			require.NoError(t, binary.Write(buf, binary.BigEndian, data[b][f]))
		}
	}
	return buf.Bytes()
}

func TestReadSingleBand(t *testing.T) {
	t.Parallel()

	// 100 ns units: period 2500 -> 4000 Hz
	raw := encodeHTK(t, 2500, [][]float32{{1.5, -2.25, 3.0, 0.5}})

	rec, err := Read(bytes.NewReader(raw), false)
	require.NoError(t, err)

	assert.InDelta(t, 4000.0, rec.SampleRate, 1e-9)
	assert.Equal(t, 1, rec.Bands())
	assert.Equal(t, 4, rec.NumSamples())
	assert.Equal(t, []float64{1.5, -2.25, 3.0, 0.5}, rec.Data[0])
}

func TestReadMultiBandDeinterleaves(t *testing.T) {
	t.Parallel()

	data := [][]float32{
		{1, 2, 3},
		{10, 20, 30},
		{100, 200, 300},
	}
	raw := encodeHTK(t, 10000, data)

	rec, err := Read(bytes.NewReader(raw), false)
	require.NoError(t, err)

	assert.Equal(t, 3, rec.Bands())
	assert.Equal(t, 3, rec.NumSamples())
	assert.Equal(t, []float64{1, 2, 3}, rec.Data[0])
	assert.Equal(t, []float64{10, 20, 30}, rec.Data[1])
	assert.Equal(t, []float64{100, 200, 300}, rec.Data[2])
}

func TestReadScaledSampleRate(t *testing.T) {
	t.Parallel()

	raw := encodeHTK(t, 2500, [][]float32{{0}})

	rec, err := Read(bytes.NewReader(raw), true)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, rec.SampleRate, 1e-9)

	rec, err = Read(bytes.NewReader(raw), false)
	require.NoError(t, err)
	assert.InDelta(t, 4000.0, rec.SampleRate, 1e-9)
}

func TestReadRejectsBadHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mangle func([]byte)
	}{
		{"zero sample period", func(b []byte) {
			binary.BigEndian.PutUint32(b[4:], 0)
		}},
		{"sample size not multiple of four", func(b []byte) {
			binary.BigEndian.PutUint16(b[8:], 6)
		}},
		{"negative sample count", func(b []byte) {
			binary.BigEndian.PutUint32(b[0:], 0xFFFFFFFF)
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := encodeHTK(t, 2500, [][]float32{{1, 2}})
			tt.mangle(raw)
			_, err := Read(bytes.NewReader(raw), false)
			assert.Error(t, err)
		})
	}
}

func TestReadTruncatedData(t *testing.T) {
	t.Parallel()

	raw := encodeHTK(t, 2500, [][]float32{{1, 2, 3, 4}})
	_, err := Read(bytes.NewReader(raw[:len(raw)-3]), false)
	assert.Error(t, err)
}

func TestReadFileMissing(t *testing.T) {
	t.Parallel()

	_, err := ReadFile(filepath.Join(t.TempDir(), "Wav11.htk"), false)
	assert.Error(t, err)
}

func TestReadFileRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "Wav11.htk")
	raw := encodeHTK(t, 25000, [][]float32{{0.25, -0.5}})
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	rec, err := ReadFile(path, false)
	require.NoError(t, err)
	assert.InDelta(t, 400.0, rec.SampleRate, 1e-9)
	assert.Equal(t, []float64{0.25, -0.5}, rec.Data[0])
}
