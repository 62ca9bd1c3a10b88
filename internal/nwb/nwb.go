// Package nwb models one recording session as a hierarchical NWB-style
// container and serializes it to an HDF5 archive. The model is built once
// per conversion run, written, and read back as a verification step.
package nwb

import (
	"time"

	"ecog2nwb/internal/errors"
)

// Device is one named physical recording hardware unit.
type Device struct {
	Name string
}

// ElectrodeGroup is a named set of electrodes tied to one device.
type ElectrodeGroup struct {
	Name        string
	Description string
	Location    string
	Device      string
}

// Electrode is one row of the electrode table.
type Electrode struct {
	ID        int
	X, Y, Z   float64
	Impedance float64
	Location  string
	Filtering string
	Group     string
}

// TimeSeries is a single-channel series with a fixed sampling rate.
type TimeSeries struct {
	Name        string
	Data        []float64
	Rate        float64
	Unit        string
	Conversion  float64
	Description string
}

// ElectricalSeries is a multi-channel series tied to an electrode table
// region, channels x time.
type ElectricalSeries struct {
	Name        string
	Data        [][]float64
	Rate        float64
	Unit        string
	Conversion  float64
	Description string
	Electrodes  []int // electrode table row indices
}

// IntervalSeries marks time segments, in seconds.
type IntervalSeries struct {
	Name        string
	Description string
	Starts      []float64
	Stops       []float64
}

// AddInterval appends one (start, stop) segment.
func (is *IntervalSeries) AddInterval(start, stop float64) {
	is.Starts = append(is.Starts, start)
	is.Stops = append(is.Stops, stop)
}

// HilbertSeries is an analytic-signal series, channels x bands x time,
// with per-band filter metadata.
type HilbertSeries struct {
	Name          string
	Data          [][][]float64
	Rate          float64
	FilterCenters []float64
	FilterSigmas  []float64
	Electrodes    []int
}

// ProcessingModule groups derived series under a named module.
type ProcessingModule struct {
	Name        string
	Description string
	Hilbert     []*HilbertSeries
}

// AddHilbertSeries attaches a Hilbert series to the module.
func (pm *ProcessingModule) AddHilbertSeries(hs *HilbertSeries) {
	pm.Hilbert = append(pm.Hilbert, hs)
}

// Surface is one cortical surface mesh.
type Surface struct {
	Name     string
	Vertices [][3]float64
	Faces    [][3]uint32
}

// Validate checks that every face references an existing vertex.
func (s *Surface) Validate() error {
	n := uint32(len(s.Vertices))
	for _, f := range s.Faces {
		for _, idx := range f {
			if idx >= n {
				return errors.Newf("surface %s: face vertex index %d out of range (%d vertices)",
					s.Name, idx, n).
					Component("nwb").
					Category(errors.CategoryValidation).
					Build()
			}
		}
	}
	return nil
}

// SurfaceLink references a surface stored in an external per-subject
// archive instead of copying its geometry into the session file.
type SurfaceLink struct {
	FilePath    string // path of the auxiliary archive
	SurfaceName string
}

// Subject holds subject metadata written under /general/subject.
type Subject struct {
	SubjectID   string
	Species     string
	Sex         string
	Age         string
	Description string
}

// VirusInjection is one injection record attached to a surgery.
type VirusInjection struct {
	Name        string
	Coordinates [3]float64 // AP, ML, DV
	Virus       string
	VolumeNL    float64
}

// Surgery is one surgery record written under /general/surgeries.
type Surgery struct {
	Name            string
	Notes           string
	Anesthesia      string
	TargetAnatomy   string
	VirusInjections []VirusInjection
}

// Validate checks required surgery fields at construction time.
func (s *Surgery) Validate() error {
	if s.Name == "" {
		return errors.NewStd("surgery record requires a name")
	}
	for _, vi := range s.VirusInjections {
		if vi.Name == "" || vi.Virus == "" {
			return errors.Newf("virus injection in surgery %s requires name and virus", s.Name).
				Component("nwb").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return nil
}

// File is the top-level session container, aggregating everything written
// to one archive.
type File struct {
	SessionDescription string
	Identifier         string
	SessionStartTime   time.Time
	FileCreateDate     time.Time
	Institution        string
	Lab                string

	Devices         []*Device
	ElectrodeGroups []*ElectrodeGroup
	Electrodes      []Electrode

	AcquisitionSeries     []*TimeSeries
	AcquisitionElectrical []*ElectricalSeries
	AcquisitionIntervals  []*IntervalSeries
	StimulusSeries        []*TimeSeries
	Processing            []*ProcessingModule

	Surfaces     []*Surface    // embedded mesh geometry
	SurfaceLinks []SurfaceLink // externally linked mesh geometry

	Subject   *Subject
	Surgeries []*Surgery
}

// NewFile constructs a session container. Identifier and description are
// required; the start time defaults to 1900-01-01 UTC when zero.
func NewFile(sessionDescription, identifier string, startTime time.Time) (*File, error) {
	if identifier == "" {
		return nil, errors.NewStd("session identifier must not be empty")
	}
	if sessionDescription == "" {
		return nil, errors.NewStd("session description must not be empty")
	}
	if startTime.IsZero() {
		startTime = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &File{
		SessionDescription: sessionDescription,
		Identifier:         identifier,
		SessionStartTime:   startTime,
		FileCreateDate:     time.Now().UTC(),
	}, nil
}

// CreateDevice registers a named device. Duplicate names are rejected.
func (f *File) CreateDevice(name string) (*Device, error) {
	for _, d := range f.Devices {
		if d.Name == name {
			return nil, errors.Newf("device %q already registered", name).
				Component("nwb").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	d := &Device{Name: name}
	f.Devices = append(f.Devices, d)
	return d, nil
}

// CreateElectrodeGroup registers an electrode group tied to a device.
func (f *File) CreateElectrodeGroup(name, description, location string, device *Device) (*ElectrodeGroup, error) {
	if device == nil {
		return nil, errors.NewStd("electrode group requires a device")
	}
	g := &ElectrodeGroup{
		Name:        name,
		Description: description,
		Location:    location,
		Device:      device.Name,
	}
	f.ElectrodeGroups = append(f.ElectrodeGroups, g)
	return g, nil
}

// AddElectrode appends one row to the electrode table. Rows keep the order
// they were registered in.
func (f *File) AddElectrode(e Electrode) error {
	found := false
	for _, g := range f.ElectrodeGroups {
		if g.Name == e.Group {
			found = true
			break
		}
	}
	if !found {
		return errors.Newf("electrode %d references unknown group %q", e.ID, e.Group).
			Component("nwb").
			Category(errors.CategoryValidation).
			Build()
	}
	f.Electrodes = append(f.Electrodes, e)
	return nil
}

// ElectrodeTableRegion returns the row indices 0..n-1 of the current
// electrode table, the region all-electrodes series refer to.
func (f *File) ElectrodeTableRegion() []int {
	region := make([]int, len(f.Electrodes))
	for i := range region {
		region[i] = i
	}
	return region
}

// AddAcquisition attaches a single-channel series to the acquisition group.
func (f *File) AddAcquisition(ts *TimeSeries) {
	f.AcquisitionSeries = append(f.AcquisitionSeries, ts)
}

// AddAcquisitionElectrical attaches a multi-channel series to acquisition.
func (f *File) AddAcquisitionElectrical(es *ElectricalSeries) {
	f.AcquisitionElectrical = append(f.AcquisitionElectrical, es)
}

// AddAcquisitionIntervals attaches an interval series to acquisition.
func (f *File) AddAcquisitionIntervals(is *IntervalSeries) {
	f.AcquisitionIntervals = append(f.AcquisitionIntervals, is)
}

// AddStimulus attaches a series to the stimulus presentation group.
func (f *File) AddStimulus(ts *TimeSeries) {
	f.StimulusSeries = append(f.StimulusSeries, ts)
}

// CreateProcessingModule registers a named processing module.
func (f *File) CreateProcessingModule(name, description string) *ProcessingModule {
	pm := &ProcessingModule{Name: name, Description: description}
	f.Processing = append(f.Processing, pm)
	return pm
}

// AddSurface embeds a cortical surface into the session container.
func (f *File) AddSurface(s *Surface) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.Surfaces = append(f.Surfaces, s)
	return nil
}

// LinkSurface attaches a surface by reference to an external archive.
func (f *File) LinkSurface(link SurfaceLink) {
	f.SurfaceLinks = append(f.SurfaceLinks, link)
}

// AddSurgery validates and appends a surgery record.
func (f *File) AddSurgery(s *Surgery) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.Surgeries = append(f.Surgeries, s)
	return nil
}
