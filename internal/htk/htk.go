// Package htk reads HTK-format signal files as produced by the Chang lab
// recording rig. Each file carries a 12-byte big-endian header followed by
// float32 sample frames; multi-band files pack one value per band per frame.
package htk

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"ecog2nwb/internal/errors"
)

// header is the fixed 12-byte HTK file header.
type header struct {
	NumSamples   int32 // number of sample frames in the file
	SamplePeriod int32 // frame period in 100 ns units
	SampleSize   int16 // bytes per frame
	ParmKind     int16 // HTK parameter kind code
}

// Recording is the decoded content of one HTK file.
type Recording struct {
	SampleRate float64     // frames per second
	Data       [][]float64 // Data[band][frame]; single-band files have one row
}

// Bands returns the number of values per frame.
func (r *Recording) Bands() int {
	return len(r.Data)
}

// NumSamples returns the number of frames.
func (r *Recording) NumSamples() int {
	if len(r.Data) == 0 {
		return 0
	}
	return len(r.Data[0])
}

// ReadFile reads the HTK file at path. When scaleSampleRate is set the
// header-derived rate is divided by 1e4; Chang lab HTK headers store a
// sample period inflated by that factor.
func ReadFile(path string, scaleSampleRate bool) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("htk").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer f.Close()

	rec, err := Read(f, scaleSampleRate)
	if err != nil {
		return nil, errors.Newf("reading %s: %w", path, err).
			Component("htk").
			Category(errors.CategoryFileParsing).
			FileContext(path, 0).
			Build()
	}
	return rec, nil
}

// Read decodes an HTK stream.
func Read(r io.Reader, scaleSampleRate bool) (*Recording, error) {
	var h header
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, errors.Newf("reading HTK header: %w", err).
			Component("htk").
			Category(errors.CategoryFileParsing).
			Build()
	}

	if h.NumSamples < 0 || h.SamplePeriod <= 0 {
		return nil, errors.Newf("invalid HTK header: nSamples=%d samplePeriod=%d",
			h.NumSamples, h.SamplePeriod).
			Component("htk").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if h.SampleSize <= 0 || h.SampleSize%4 != 0 {
		return nil, errors.Newf("invalid HTK sample size: %d bytes", h.SampleSize).
			Component("htk").
			Category(errors.CategoryFileParsing).
			Build()
	}

	bands := int(h.SampleSize) / 4
	frames := int(h.NumSamples)

	raw := make([]float32, bands*frames)
	if err := binary.Read(r, binary.BigEndian, &raw); err != nil {
		return nil, errors.Newf("reading HTK samples: %w", err).
			Component("htk").
			Category(errors.CategoryFileParsing).
			Build()
	}

	data := make([][]float64, bands)
	for b := range data {
		data[b] = make([]float64, frames)
	}
	// frames are interleaved on disk, one value per band
	for i, v := range raw {
		data[i%bands][i/bands] = float64(v)
	}

	rate := 1e7 / float64(h.SamplePeriod)
	if scaleSampleRate {
		rate /= 1e4
	}
	if math.IsInf(rate, 0) || rate <= 0 {
		return nil, errors.Newf("invalid HTK sampling rate derived from period %d", h.SamplePeriod).
			Component("htk").
			Category(errors.CategoryFileParsing).
			Build()
	}

	return &Recording{SampleRate: rate, Data: data}, nil
}
