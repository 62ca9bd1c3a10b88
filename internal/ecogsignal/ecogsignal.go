// Package ecogsignal reads the electrophysiology and analog signal sources
// of one recording block: per-channel HTK files under RawHTK, the
// consolidated ecog400 matrix, analog WAV/HTK auxiliary channels and the
// Hilbert band directory.
package ecogsignal

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"
	"gonum.org/v1/hdf5"

	"ecog2nwb/internal/errors"
	"ecog2nwb/internal/htk"
)

// bankSize is the number of channels per HTK file bank.
const bankSize = 64

// ErrNoAnalogSource is returned when neither the WAV nor the HTK variant of
// an analog channel exists.
var ErrNoAnalogSource = errors.NewStd("no analog source found")

// Recording is a multi-channel single-band signal, channels x time.
type Recording struct {
	Rate float64
	Data [][]float64
}

// BandRecording is a multi-channel multi-band signal, channels x bands x
// time, with per-band filter metadata.
type BandRecording struct {
	Rate    float64
	Data    [][][]float64
	Centers []float64 // filter center frequencies in Hz
	Sigmas  []float64 // filter widths in Hz
}

// ChannelFileName returns the HTK file name for a zero-indexed channel,
// 1-indexed within 64-channel banks: channel 0 -> Wav11.htk, channel 64 ->
// Wav21.htk.
func ChannelFileName(channel int) string {
	return fmt.Sprintf("Wav%d%d.htk", channel/bankSize+1, channel%bankSize+1)
}

// ReadChannels reads the given zero-indexed channels from per-channel HTK
// files under dir, preserving the requested order. A missing channel file
// is fatal; no partial reconstruction is attempted.
func ReadChannels(dir string, channels []int, scaleSampleRate bool) (*Recording, error) {
	rec := &Recording{Data: make([][]float64, 0, len(channels))}
	for _, ch := range channels {
		path := filepath.Join(dir, ChannelFileName(ch))
		one, err := htk.ReadFile(path, scaleSampleRate)
		if err != nil {
			return nil, err
		}
		if one.Bands() != 1 {
			return nil, errors.Newf("channel file %s has %d bands, expected 1", path, one.Bands()).
				Component("ecogsignal").
				Category(errors.CategorySignalData).
				Build()
		}
		if rec.Rate != 0 && one.SampleRate != rec.Rate {
			return nil, errors.Newf("channel %d sampling rate %.3f differs from %.3f", ch, one.SampleRate, rec.Rate).
				Component("ecogsignal").
				Category(errors.CategorySignalData).
				Build()
		}
		rec.Rate = one.SampleRate
		rec.Data = append(rec.Data, one.Data[0])
	}
	return rec, nil
}

// ReadBands reads every Wav*.htk channel file under dir as a multi-band
// recording, in bank order.
func ReadBands(dir string, scaleSampleRate bool) (*BandRecording, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "Wav*.htk"))
	if err != nil {
		return nil, errors.New(err).
			Component("ecogsignal").
			Category(errors.CategoryFileIO).
			Build()
	}
	if len(matches) == 0 {
		return nil, errors.Newf("no Wav*.htk channel files under %s", dir).
			Component("ecogsignal").
			Category(errors.CategoryFileIO).
			Build()
	}

	rec := &BandRecording{Data: make([][][]float64, 0, len(matches))}
	for ch := 0; ch < len(matches); ch++ {
		path := filepath.Join(dir, ChannelFileName(ch))
		one, err := htk.ReadFile(path, scaleSampleRate)
		if err != nil {
			return nil, err
		}
		if rec.Rate != 0 && one.SampleRate != rec.Rate {
			return nil, errors.Newf("channel %d sampling rate %.3f differs from %.3f", ch, one.SampleRate, rec.Rate).
				Component("ecogsignal").
				Category(errors.CategorySignalData).
				Build()
		}
		rec.Rate = one.SampleRate
		rec.Data = append(rec.Data, one.Data)
	}

	bands := len(rec.Data[0])
	rec.Centers, rec.Sigmas = BandFilters(70, 150, bands)
	return rec, nil
}

// BandFilters returns log-spaced filter center frequencies between fmin and
// fmax with proportional widths, matching the lab's Hilbert filter bank
// naming (e.g. HilbAA_70to150_8band).
func BandFilters(fmin, fmax float64, bands int) (centers, sigmas []float64) {
	centers = make([]float64, bands)
	sigmas = make([]float64, bands)
	if bands == 1 {
		centers[0] = math.Sqrt(fmin * fmax)
		sigmas[0] = centers[0] / 4
		return centers, sigmas
	}
	ratio := math.Log(fmax/fmin) / float64(bands-1)
	for i := range centers {
		centers[i] = fmin * math.Exp(ratio*float64(i))
		sigmas[i] = centers[i] / 4
	}
	return centers, sigmas
}

// ReadConsolidated reads the given channels from an ecog400/ecog.mat
// consolidated matrix, a MATLAB v7.3 (HDF5) file with /ecogDS/data laid out
// time x channels and /ecogDS/sampFreq holding the sampling rate.
func ReadConsolidated(path string, channels []int) (*Recording, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, errors.Newf("opening %s: %w", path, err).
			Component("ecogsignal").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer f.Close()

	dset, err := f.OpenDataset("ecogDS/data")
	if err != nil {
		return nil, errors.Newf("opening ecogDS/data in %s: %w", path, err).
			Component("ecogsignal").
			Category(errors.CategoryFileParsing).
			Build()
	}
	defer dset.Close()

	space := dset.Space()
	dims, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil {
		return nil, errors.Newf("reading ecogDS/data extent: %w", err).
			Component("ecogsignal").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if len(dims) != 2 {
		return nil, errors.Newf("ecogDS/data has %d dimensions, expected 2", len(dims)).
			Component("ecogsignal").
			Category(errors.CategoryFileParsing).
			Build()
	}
	frames, cols := int(dims[0]), int(dims[1])

	raw := make([]float64, frames*cols)
	if err := dset.Read(&raw); err != nil {
		return nil, errors.Newf("reading ecogDS/data: %w", err).
			Component("ecogsignal").
			Category(errors.CategoryFileParsing).
			Build()
	}

	rate, err := readSampFreq(f)
	if err != nil {
		return nil, err
	}

	rec := &Recording{Rate: rate, Data: make([][]float64, 0, len(channels))}
	for _, ch := range channels {
		if ch < 0 || ch >= cols {
			return nil, errors.Newf("channel %d out of range, matrix has %d channels", ch, cols).
				Component("ecogsignal").
				Category(errors.CategorySignalData).
				Build()
		}
		col := make([]float64, frames)
		for t := 0; t < frames; t++ {
			col[t] = raw[t*cols+ch]
		}
		rec.Data = append(rec.Data, col)
	}
	return rec, nil
}

func readSampFreq(f *hdf5.File) (float64, error) {
	dset, err := f.OpenDataset("ecogDS/sampFreq")
	if err != nil {
		return 0, errors.Newf("opening ecogDS/sampFreq: %w", err).
			Component("ecogsignal").
			Category(errors.CategoryFileParsing).
			Build()
	}
	defer dset.Close()

	space := dset.Space()
	dims, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil {
		return 0, errors.Newf("reading ecogDS/sampFreq extent: %w", err).
			Component("ecogsignal").
			Category(errors.CategoryFileParsing).
			Build()
	}
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	raw := make([]float64, n)
	if err := dset.Read(&raw); err != nil {
		return 0, errors.Newf("reading ecogDS/sampFreq: %w", err).
			Component("ecogsignal").
			Category(errors.CategoryFileParsing).
			Build()
	}
	return raw[0], nil
}

// ReadAnalog reads auxiliary analog channel num (1-4) of the block,
// trying Analog/analog{num}.wav first and falling back to
// Analog/ANIN{num}.htk. Absence of both is fatal.
func ReadAnalog(blockPath string, num int) (rate float64, data []float64, err error) {
	wavPath := filepath.Join(blockPath, "Analog", fmt.Sprintf("analog%d.wav", num))
	if _, statErr := os.Stat(wavPath); statErr == nil {
		return readAnalogWAV(wavPath)
	}

	htkPath := filepath.Join(blockPath, "Analog", fmt.Sprintf("ANIN%d.htk", num))
	if _, statErr := os.Stat(htkPath); statErr == nil {
		rec, err := htk.ReadFile(htkPath, true)
		if err != nil {
			return 0, nil, err
		}
		return rec.SampleRate, rec.Data[0], nil
	}

	return 0, nil, errors.Newf("%w for channel %d under %s", ErrNoAnalogSource, num, blockPath).
		Component("ecogsignal").
		Category(errors.CategoryFileIO).
		Build()
}

func readAnalogWAV(path string) (float64, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, errors.New(err).
			Component("ecogsignal").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return 0, nil, errors.Newf("%s is not a valid WAV audio file", path).
			Component("ecogsignal").
			Category(errors.CategoryFileParsing).
			Build()
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return 0, nil, errors.Newf("decoding %s: %w", path, err).
			Component("ecogsignal").
			Category(errors.CategoryFileParsing).
			Build()
	}

	data := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		data[i] = float64(v)
	}
	return float64(decoder.SampleRate), data, nil
}
