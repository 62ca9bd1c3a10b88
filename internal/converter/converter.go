// Package converter orchestrates the conversion of one recording block into
// a session archive: load electrode metadata, read the signal sources, build
// the container and write it out with a read-back verification pass.
package converter

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ecog2nwb/internal/anatomy"
	"ecog2nwb/internal/conf"
	"ecog2nwb/internal/ecogsignal"
	"ecog2nwb/internal/errors"
	"ecog2nwb/internal/logging"
	"ecog2nwb/internal/matfile"
	"ecog2nwb/internal/nwb"
)

// Conversion constants carried from the lab's recording setup.
const (
	lfpConversion = 0.001 // raw LFP counts to volts
	ekgConversion = 0.001 // raw EKG counts to volts
	miniFrames    = 2000  // frames kept per channel in mini mode
)

// Block subdirectory layout.
const (
	rawHTKDir     = "RawHTK"
	hilbertDir    = "HilbAA_70to150_8band"
	badTimeFile   = "badTimeSegments.mat"
	elecsFileName = "TDT_elecs_all.mat"
)

// Result summarizes one finished conversion for reporting.
type Result struct {
	BlockName   string
	Subject     string
	OutPath     string
	AuxPath     string // external mesh archive, empty unless mesh=external
	Devices     []string
	LFPChannels int
	EKGChannels int
	Frames      int
	Rate        float64
	Series      []string // names of all series added to the archive
	Surfaces    int
	BadSegments int
	Elapsed     time.Duration
}

// Run converts the recording block at blockPath into an archive at outPath.
// Options are validated before any output file is created.
func Run(settings *conf.Settings, blockPath, outPath string) (*Result, error) {
	start := time.Now()
	log := logging.ForService("converter")

	if err := conf.ValidateSettings(settings); err != nil {
		return nil, err
	}

	blockName := filepath.Base(filepath.Clean(blockPath))
	subject := subjectID(blockName)
	if outPath == "" {
		outPath = blockPath + ".nwb"
	}

	res := &Result{
		BlockName: blockName,
		Subject:   subject,
		OutPath:   outPath,
	}

	f, err := newSessionFile(settings, blockName)
	if err != nil {
		return nil, err
	}
	f.Subject = &nwb.Subject{SubjectID: subject}

	imagingDir := imagingPath(settings, blockPath, subject)
	log.Info("loading electrode metadata", "block", blockName, "imaging", imagingDir)

	md, err := anatomy.Load(filepath.Join(imagingDir, "elecs", elecsFileName))
	if err != nil {
		return nil, err
	}
	if err := buildElectrodeTable(f, md); err != nil {
		return nil, err
	}
	res.Devices = md.Devices()

	if err := addSignals(log, settings, f, md, blockPath, res); err != nil {
		return nil, err
	}
	if err := addAnalogChannels(log, settings, f, blockPath, res); err != nil {
		return nil, err
	}
	if err := addBadTimeSegments(f, blockPath, res); err != nil {
		return nil, err
	}
	if settings.Convert.Hilbert {
		if err := addHilbert(log, settings, f, blockPath, res); err != nil {
			return nil, err
		}
	}

	// An external mesh archive must stay open for reading until the session
	// write and its verification complete.
	aux, err := attachMesh(log, settings, f, imagingDir, blockPath, subject, res)
	if err != nil {
		return nil, err
	}
	if aux != nil {
		defer aux.Close()
	}

	log.Info("writing archive", "path", outPath)
	if err := nwb.WriteFile(outPath, f); err != nil {
		return nil, err
	}
	if _, err := nwb.ReadFile(outPath); err != nil {
		return nil, errors.Newf("archive %s failed read-back verification: %w", outPath, err).
			Component("converter").
			Category(errors.CategoryIntegrity).
			FileContext(outPath, 0).
			Build()
	}

	res.Elapsed = time.Since(start)
	log.Info("conversion complete", "path", outPath, "elapsed", res.Elapsed)
	return res, nil
}

// subjectID derives the subject identifier from the block name, the prefix
// before the first underscore.
func subjectID(blockName string) string {
	if idx := strings.Index(blockName, "_"); idx > 0 {
		return blockName[:idx]
	}
	return blockName
}

func imagingPath(settings *conf.Settings, blockPath, subject string) string {
	if settings.Convert.ImagingPath != "" {
		return filepath.Join(settings.Convert.ImagingPath, subject)
	}
	return filepath.Join(filepath.Dir(blockPath), "imaging")
}

func newSessionFile(settings *conf.Settings, blockName string) (*nwb.File, error) {
	description := settings.Session.Description
	if description == "" {
		description = blockName
	}
	identifier := settings.Session.Identifier
	if identifier == "" {
		identifier = blockName
	}
	if identifier == "" || identifier == "." {
		identifier = uuid.New().String()
	}

	f, err := nwb.NewFile(description, identifier, time.Time{})
	if err != nil {
		return nil, err
	}
	f.Institution = settings.Session.Institution
	f.Lab = settings.Session.Lab
	return f, nil
}

// buildElectrodeTable registers devices, one electrode group per device and
// the electrode rows, grouped by device in anatomy order.
func buildElectrodeTable(f *nwb.File, md *anatomy.Metadata) error {
	for _, deviceName := range md.Devices() {
		device, err := f.CreateDevice(deviceName)
		if err != nil {
			return err
		}
		electrodes := md.ByDevice(deviceName)
		group, err := f.CreateElectrodeGroup(
			deviceName+" electrodes", deviceName, electrodes[0].Type, device)
		if err != nil {
			return err
		}
		for _, e := range electrodes {
			err := f.AddElectrode(nwb.Electrode{
				ID:        e.Index,
				X:         e.X,
				Y:         e.Y,
				Z:         e.Z,
				Impedance: math.NaN(),
				Location:  e.Location,
				Filtering: "none",
				Group:     group.Name,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// addSignals reads the LFP and EKG electrophysiology and attaches the
// acquisition series.
func addSignals(log *slog.Logger, settings *conf.Settings, f *nwb.File, md *anatomy.Metadata, blockPath string, res *Result) error {
	lfpChannels := electrodeIndices(md.LFP())
	ekgChannels := electrodeIndices(md.EKG())

	var lfp, ekg *ecogsignal.Recording
	var err error
	switch settings.Convert.Format {
	case conf.FormatHTK:
		dir := filepath.Join(blockPath, rawHTKDir)
		log.Debug("reading per-channel files", "dir", dir, "channels", len(lfpChannels))
		lfp, err = ecogsignal.ReadChannels(dir, lfpChannels, settings.Convert.ScaleSampleRate)
		if err != nil {
			return err
		}
		if len(ekgChannels) > 0 {
			ekg, err = ecogsignal.ReadChannels(dir, ekgChannels, settings.Convert.ScaleSampleRate)
			if err != nil {
				return err
			}
		}
	case conf.FormatMat:
		path := filepath.Join(blockPath, "ecog400", "ecog.mat")
		log.Debug("reading consolidated matrix", "path", path)
		lfp, err = ecogsignal.ReadConsolidated(path, lfpChannels)
		if err != nil {
			return err
		}
		if len(ekgChannels) > 0 {
			ekg, err = ecogsignal.ReadConsolidated(path, ekgChannels)
			if err != nil {
				return err
			}
		}
	}

	if settings.Convert.Mini {
		truncateFrames(lfp.Data, miniFrames)
		if ekg != nil {
			truncateFrames(ekg.Data, miniFrames)
		}
	}

	f.AddAcquisitionElectrical(&nwb.ElectricalSeries{
		Name:        "LFP",
		Data:        lfp.Data,
		Rate:        lfp.Rate,
		Unit:        "V",
		Conversion:  lfpConversion,
		Description: "all Wav data",
		Electrodes:  f.ElectrodeTableRegion(),
	})
	res.Series = append(res.Series, "LFP")
	res.LFPChannels = len(lfp.Data)
	res.Rate = lfp.Rate
	if len(lfp.Data) > 0 {
		res.Frames = len(lfp.Data[0])
	}

	if ekg != nil {
		for i, name := range ekgSeriesNames(len(ekg.Data)) {
			f.AddAcquisition(&nwb.TimeSeries{
				Name:        name,
				Data:        ekg.Data[i],
				Rate:        ekg.Rate,
				Unit:        "V",
				Conversion:  ekgConversion,
				Description: "electrocardiogram",
			})
			res.Series = append(res.Series, name)
		}
		res.EKGChannels = len(ekg.Data)
	}
	return nil
}

func electrodeIndices(electrodes []anatomy.Electrode) []int {
	out := make([]int, len(electrodes))
	for i, e := range electrodes {
		out[i] = e.Index
	}
	return out
}

// ekgSeriesNames names the EKG series: a single channel keeps the plain
// name, multiple channels are numbered.
func ekgSeriesNames(n int) []string {
	if n == 1 {
		return []string{"EKG"}
	}
	names := make([]string, n)
	for i := range names {
		names[i] = "EKG" + strconv.Itoa(i+1)
	}
	return names
}

func truncateFrames(data [][]float64, frames int) {
	for i, channel := range data {
		if len(channel) > frames {
			data[i] = channel[:frames]
		}
	}
}

// addAnalogChannels attaches the microphone, speaker and auxiliary analog
// series when enabled.
func addAnalogChannels(log *slog.Logger, settings *conf.Settings, f *nwb.File, blockPath string, res *Result) error {
	if settings.Convert.Microphone {
		rate, data, err := ecogsignal.ReadAnalog(blockPath, 1)
		if err != nil {
			return err
		}
		f.AddAcquisition(&nwb.TimeSeries{
			Name:        "microphone",
			Data:        data,
			Rate:        rate,
			Unit:        "audio unit",
			Conversion:  1,
			Description: "audio recording from microphone in room",
		})
		res.Series = append(res.Series, "microphone")
	}

	if settings.Convert.Speakers {
		rate, data, err := ecogsignal.ReadAnalog(blockPath, 2)
		if err != nil {
			return err
		}
		f.AddStimulus(&nwb.TimeSeries{
			Name:        "speaker 1",
			Data:        data,
			Rate:        rate,
			Unit:        "NA",
			Conversion:  1,
			Description: "audio stimulus 1",
		})
		res.Series = append(res.Series, "speaker 1")

		rate, data, err = ecogsignal.ReadAnalog(blockPath, 3)
		if err != nil {
			return err
		}
		f.AddStimulus(&nwb.TimeSeries{
			Name:        "speaker 2",
			Data:        data,
			Rate:        rate,
			Unit:        "NA",
			Conversion:  1,
			Description: "the second stimulus source",
		})
		res.Series = append(res.Series, "speaker 2")
	}

	if name := settings.Convert.Aux; name != "" {
		rate, data, err := ecogsignal.ReadAnalog(blockPath, 4)
		if err != nil {
			return err
		}
		f.AddAcquisition(&nwb.TimeSeries{
			Name:        name,
			Data:        data,
			Rate:        rate,
			Unit:        "aux unit",
			Conversion:  1,
			Description: "aux analog recording",
		})
		res.Series = append(res.Series, name)
		log.Debug("added auxiliary analog series", "name", name)
	}
	return nil
}

// addBadTimeSegments attaches manually marked bad segments when the marker
// file exists. Absence of the file is not an error.
func addBadTimeSegments(f *nwb.File, blockPath string, res *Result) error {
	path := filepath.Join(blockPath, "Artifacts", badTimeFile)
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	mat, err := matfile.Open(path)
	if err != nil {
		return err
	}
	segments, err := mat.Array("badTimeSegments")
	if err != nil {
		return err
	}
	if segments.Rows() > 0 && segments.Cols() != 2 {
		return errors.Newf("badTimeSegments in %s is not a Kx2 matrix", path).
			Component("converter").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if segments.Rows() == 0 {
		return nil
	}

	is := &nwb.IntervalSeries{Name: "badTimeSegments", Description: "bad time segments"}
	for i := 0; i < segments.Rows(); i++ {
		is.AddInterval(segments.At(i, 0), segments.At(i, 1))
	}
	f.AddAcquisitionIntervals(is)
	res.Series = append(res.Series, "badTimeSegments")
	res.BadSegments = segments.Rows()
	return nil
}

// addHilbert reads the analytic-amplitude band directory and attaches it as
// a processing module.
func addHilbert(log *slog.Logger, settings *conf.Settings, f *nwb.File, blockPath string, res *Result) error {
	dir := filepath.Join(blockPath, hilbertDir)
	log.Debug("reading band files", "dir", dir)

	rec, err := ecogsignal.ReadBands(dir, settings.Convert.ScaleSampleRate)
	if err != nil {
		return err
	}

	pm := f.CreateProcessingModule("hilbert", "analytic amplitude of the Hilbert transform")
	pm.AddHilbertSeries(&nwb.HilbertSeries{
		Name:          "hilbert_series",
		Data:          rec.Data,
		Rate:          rec.Rate,
		FilterCenters: rec.Centers,
		FilterSigmas:  rec.Sigmas,
		Electrodes:    f.ElectrodeTableRegion(),
	})
	res.Series = append(res.Series, "hilbert_series")
	return nil
}
