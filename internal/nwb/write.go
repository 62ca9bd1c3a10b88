package nwb

import (
	"time"

	"gonum.org/v1/hdf5"

	"ecog2nwb/internal/errors"
)

// Dataset names used to tag series groups so read-back can reconstruct the
// right container type.
const (
	typeTimeSeries       = "TimeSeries"
	typeElectricalSeries = "ElectricalSeries"
	typeIntervalSeries   = "IntervalSeries"
)

// WriteFile serializes the session container to one HDF5 archive at path,
// overwriting any existing file.
func WriteFile(path string, f *File) error {
	h, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return errors.Newf("creating %s: %w", path, err).
			Component("nwb").
			Category(errors.CategorySerialization).
			FileContext(path, 0).
			Build()
	}
	defer h.Close()

	if err := writeRoot(h, f); err != nil {
		return err
	}
	if err := writeGeneral(h, f); err != nil {
		return err
	}
	if err := writeAcquisition(h, f); err != nil {
		return err
	}
	if err := writeStimulus(h, f); err != nil {
		return err
	}
	if err := writeProcessing(h, f); err != nil {
		return err
	}
	return nil
}

func writeRoot(h *hdf5.File, f *File) error {
	fg := &h.CommonFG
	if err := putString(fg, "session_description", f.SessionDescription); err != nil {
		return err
	}
	if err := putString(fg, "identifier", f.Identifier); err != nil {
		return err
	}
	if err := putString(fg, "session_start_time", f.SessionStartTime.Format(time.RFC3339)); err != nil {
		return err
	}
	return putString(fg, "file_create_date", f.FileCreateDate.Format(time.RFC3339))
}

func writeGeneral(h *hdf5.File, f *File) error {
	general, err := h.CreateGroup("general")
	if err != nil {
		return wrapWrite("general", err)
	}
	defer general.Close()

	fg := &general.CommonFG
	if f.Institution != "" {
		if err := putString(fg, "institution", f.Institution); err != nil {
			return err
		}
	}
	if f.Lab != "" {
		if err := putString(fg, "lab", f.Lab); err != nil {
			return err
		}
	}

	if err := writeDevices(general, f); err != nil {
		return err
	}
	if err := writeEphys(general, f); err != nil {
		return err
	}
	if f.Subject != nil {
		if err := writeSubject(general, f.Subject); err != nil {
			return err
		}
	}
	if len(f.Surgeries) > 0 {
		if err := writeSurgeries(general, f.Surgeries); err != nil {
			return err
		}
	}
	return nil
}

func writeDevices(general *hdf5.Group, f *File) error {
	devices, err := general.CreateGroup("devices")
	if err != nil {
		return wrapWrite("general/devices", err)
	}
	defer devices.Close()

	for _, d := range f.Devices {
		g, err := devices.CreateGroup(d.Name)
		if err != nil {
			return wrapWrite("device "+d.Name, err)
		}
		if err := putString(&g.CommonFG, "name", d.Name); err != nil {
			g.Close()
			return err
		}
		g.Close()
	}
	return nil
}

func writeEphys(general *hdf5.Group, f *File) error {
	ephys, err := general.CreateGroup("extracellular_ephys")
	if err != nil {
		return wrapWrite("general/extracellular_ephys", err)
	}
	defer ephys.Close()

	for _, eg := range f.ElectrodeGroups {
		g, err := ephys.CreateGroup(eg.Name)
		if err != nil {
			return wrapWrite("electrode group "+eg.Name, err)
		}
		fg := &g.CommonFG
		err = firstErr(
			putString(fg, "description", eg.Description),
			putString(fg, "location", eg.Location),
			putString(fg, "device", eg.Device),
		)
		g.Close()
		if err != nil {
			return err
		}
	}

	return writeElectrodeTable(ephys, f.Electrodes)
}

func writeElectrodeTable(ephys *hdf5.Group, rows []Electrode) error {
	table, err := ephys.CreateGroup("electrodes")
	if err != nil {
		return wrapWrite("electrode table", err)
	}
	defer table.Close()

	n := len(rows)
	ids := make([]int32, n)
	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)
	imps := make([]float64, n)
	locations := make([]string, n)
	filterings := make([]string, n)
	groups := make([]string, n)
	for i, r := range rows {
		ids[i] = int32(r.ID)
		xs[i], ys[i], zs[i] = r.X, r.Y, r.Z
		imps[i] = r.Impedance
		locations[i] = r.Location
		filterings[i] = r.Filtering
		groups[i] = r.Group
	}

	fg := &table.CommonFG
	return firstErr(
		putIntSlice(fg, "id", ids),
		putFloatSlice(fg, "x", xs),
		putFloatSlice(fg, "y", ys),
		putFloatSlice(fg, "z", zs),
		putFloatSlice(fg, "imp", imps),
		putStringSlice(fg, "location", locations),
		putStringSlice(fg, "filtering", filterings),
		putStringSlice(fg, "group_name", groups),
	)
}

func writeSubject(general *hdf5.Group, s *Subject) error {
	g, err := general.CreateGroup("subject")
	if err != nil {
		return wrapWrite("general/subject", err)
	}
	defer g.Close()

	fg := &g.CommonFG
	return firstErr(
		putString(fg, "subject_id", s.SubjectID),
		putString(fg, "species", s.Species),
		putString(fg, "sex", s.Sex),
		putString(fg, "age", s.Age),
		putString(fg, "description", s.Description),
	)
}

func writeSurgeries(general *hdf5.Group, surgeries []*Surgery) error {
	root, err := general.CreateGroup("surgeries")
	if err != nil {
		return wrapWrite("general/surgeries", err)
	}
	defer root.Close()

	for _, s := range surgeries {
		g, err := root.CreateGroup(s.Name)
		if err != nil {
			return wrapWrite("surgery "+s.Name, err)
		}
		fg := &g.CommonFG
		err = firstErr(
			putString(fg, "notes", s.Notes),
			putString(fg, "anesthesia", s.Anesthesia),
			putString(fg, "target_anatomy", s.TargetAnatomy),
		)
		if err == nil && len(s.VirusInjections) > 0 {
			err = writeVirusInjections(g, s.VirusInjections)
		}
		g.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeVirusInjections(surgery *hdf5.Group, injections []VirusInjection) error {
	root, err := surgery.CreateGroup("virus_injections")
	if err != nil {
		return wrapWrite("virus_injections", err)
	}
	defer root.Close()

	for _, vi := range injections {
		g, err := root.CreateGroup(vi.Name)
		if err != nil {
			return wrapWrite("virus injection "+vi.Name, err)
		}
		fg := &g.CommonFG
		err = firstErr(
			putFloatSlice(fg, "coordinates", vi.Coordinates[:]),
			putString(fg, "virus", vi.Virus),
			putFloatSlice(fg, "volume_nl", []float64{vi.VolumeNL}),
		)
		g.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeAcquisition(h *hdf5.File, f *File) error {
	acq, err := h.CreateGroup("acquisition")
	if err != nil {
		return wrapWrite("acquisition", err)
	}
	defer acq.Close()

	for _, ts := range f.AcquisitionSeries {
		if err := writeTimeSeries(acq, ts); err != nil {
			return err
		}
	}
	for _, es := range f.AcquisitionElectrical {
		if err := writeElectricalSeries(acq, es); err != nil {
			return err
		}
	}
	for _, is := range f.AcquisitionIntervals {
		if err := writeIntervalSeries(acq, is); err != nil {
			return err
		}
	}
	if len(f.Surfaces) > 0 {
		if err := writeSurfaces(acq, f.Surfaces); err != nil {
			return err
		}
	}
	if len(f.SurfaceLinks) > 0 {
		if err := writeSurfaceLinks(acq, f.SurfaceLinks); err != nil {
			return err
		}
	}
	return nil
}

func writeStimulus(h *hdf5.File, f *File) error {
	stim, err := h.CreateGroup("stimulus")
	if err != nil {
		return wrapWrite("stimulus", err)
	}
	defer stim.Close()

	pres, err := stim.CreateGroup("presentation")
	if err != nil {
		return wrapWrite("stimulus/presentation", err)
	}
	defer pres.Close()

	for _, ts := range f.StimulusSeries {
		if err := writeTimeSeries(pres, ts); err != nil {
			return err
		}
	}
	return nil
}

func writeProcessing(h *hdf5.File, f *File) error {
	if len(f.Processing) == 0 {
		return nil
	}
	root, err := h.CreateGroup("processing")
	if err != nil {
		return wrapWrite("processing", err)
	}
	defer root.Close()

	for _, pm := range f.Processing {
		g, err := root.CreateGroup(pm.Name)
		if err != nil {
			return wrapWrite("processing module "+pm.Name, err)
		}
		err = putString(&g.CommonFG, "description", pm.Description)
		for _, hs := range pm.Hilbert {
			if err != nil {
				break
			}
			err = writeHilbertSeries(g, hs)
		}
		g.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeTimeSeries(parent *hdf5.Group, ts *TimeSeries) error {
	g, err := parent.CreateGroup(ts.Name)
	if err != nil {
		return wrapWrite("series "+ts.Name, err)
	}
	defer g.Close()

	fg := &g.CommonFG
	return firstErr(
		putString(fg, "neurodata_type", typeTimeSeries),
		putFloatSlice(fg, "data", ts.Data),
		putFloatSlice(fg, "rate", []float64{ts.Rate}),
		putFloatSlice(fg, "conversion", []float64{ts.Conversion}),
		putString(fg, "unit", ts.Unit),
		putString(fg, "description", ts.Description),
	)
}

func writeElectricalSeries(parent *hdf5.Group, es *ElectricalSeries) error {
	g, err := parent.CreateGroup(es.Name)
	if err != nil {
		return wrapWrite("series "+es.Name, err)
	}
	defer g.Close()

	region := make([]int32, len(es.Electrodes))
	for i, v := range es.Electrodes {
		region[i] = int32(v)
	}

	fg := &g.CommonFG
	return firstErr(
		putString(fg, "neurodata_type", typeElectricalSeries),
		putFloatMatrix(fg, "data", es.Data),
		putFloatSlice(fg, "rate", []float64{es.Rate}),
		putFloatSlice(fg, "conversion", []float64{es.Conversion}),
		putString(fg, "unit", es.Unit),
		putString(fg, "description", es.Description),
		putIntSlice(fg, "electrodes", region),
	)
}

func writeIntervalSeries(parent *hdf5.Group, is *IntervalSeries) error {
	g, err := parent.CreateGroup(is.Name)
	if err != nil {
		return wrapWrite("series "+is.Name, err)
	}
	defer g.Close()

	fg := &g.CommonFG
	return firstErr(
		putString(fg, "neurodata_type", typeIntervalSeries),
		putString(fg, "description", is.Description),
		putFloatSlice(fg, "start_times", is.Starts),
		putFloatSlice(fg, "stop_times", is.Stops),
	)
}

func writeHilbertSeries(parent *hdf5.Group, hs *HilbertSeries) error {
	g, err := parent.CreateGroup(hs.Name)
	if err != nil {
		return wrapWrite("series "+hs.Name, err)
	}
	defer g.Close()

	region := make([]int32, len(hs.Electrodes))
	for i, v := range hs.Electrodes {
		region[i] = int32(v)
	}

	fg := &g.CommonFG
	return firstErr(
		putFloatCube(fg, "data", hs.Data),
		putFloatSlice(fg, "rate", []float64{hs.Rate}),
		putFloatSlice(fg, "filter_centers", hs.FilterCenters),
		putFloatSlice(fg, "filter_sigmas", hs.FilterSigmas),
		putIntSlice(fg, "electrodes", region),
	)
}

func writeSurfaces(parent *hdf5.Group, surfaces []*Surface) error {
	root, err := parent.CreateGroup("cortical_surfaces")
	if err != nil {
		return wrapWrite("cortical_surfaces", err)
	}
	defer root.Close()

	for _, s := range surfaces {
		g, err := root.CreateGroup(s.Name)
		if err != nil {
			return wrapWrite("surface "+s.Name, err)
		}
		fg := &g.CommonFG
		err = firstErr(
			putVertexMatrix(fg, "vertices", s.Vertices),
			putFaceMatrix(fg, "faces", s.Faces),
		)
		g.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeSurfaceLinks(parent *hdf5.Group, links []SurfaceLink) error {
	root, err := parent.CreateGroup("cortical_surface_links")
	if err != nil {
		return wrapWrite("cortical_surface_links", err)
	}
	defer root.Close()

	for _, l := range links {
		g, err := root.CreateGroup(l.SurfaceName)
		if err != nil {
			return wrapWrite("surface link "+l.SurfaceName, err)
		}
		fg := &g.CommonFG
		err = firstErr(
			putString(fg, "external_file", l.FilePath),
			putString(fg, "external_object", "acquisition/cortical_surfaces/"+l.SurfaceName),
		)
		g.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// --- low-level dataset helpers ---

func putString(fg *hdf5.CommonFG, name, value string) error {
	values := []string{value}
	space, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer space.Close()

	dset, err := fg.CreateDataset(name, hdf5.T_GO_STRING, space)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer dset.Close()
	if err := dset.Write(&values); err != nil {
		return wrapWrite(name, err)
	}
	return nil
}

func putStringSlice(fg *hdf5.CommonFG, name string, values []string) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(values))}, nil)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer space.Close()

	dset, err := fg.CreateDataset(name, hdf5.T_GO_STRING, space)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer dset.Close()
	if err := dset.Write(&values); err != nil {
		return wrapWrite(name, err)
	}
	return nil
}

func putFloatSlice(fg *hdf5.CommonFG, name string, values []float64) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(values))}, nil)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer space.Close()

	dset, err := fg.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer dset.Close()
	if err := dset.Write(&values); err != nil {
		return wrapWrite(name, err)
	}
	return nil
}

func putIntSlice(fg *hdf5.CommonFG, name string, values []int32) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(values))}, nil)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer space.Close()

	dset, err := fg.CreateDataset(name, hdf5.T_NATIVE_INT32, space)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer dset.Close()
	if err := dset.Write(&values); err != nil {
		return wrapWrite(name, err)
	}
	return nil
}

// putFloatMatrix writes channels x time data as a 2D dataset.
func putFloatMatrix(fg *hdf5.CommonFG, name string, rows [][]float64) error {
	nrows := len(rows)
	ncols := 0
	if nrows > 0 {
		ncols = len(rows[0])
	}
	flat := make([]float64, 0, nrows*ncols)
	for _, row := range rows {
		if len(row) != ncols {
			return errors.Newf("ragged rows in dataset %s", name).
				Component("nwb").
				Category(errors.CategorySerialization).
				Build()
		}
		flat = append(flat, row...)
	}

	space, err := hdf5.CreateSimpleDataspace([]uint{uint(nrows), uint(ncols)}, nil)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer space.Close()

	dset, err := fg.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer dset.Close()
	if err := dset.Write(&flat); err != nil {
		return wrapWrite(name, err)
	}
	return nil
}

// putFloatCube writes channels x bands x time data as a 3D dataset.
func putFloatCube(fg *hdf5.CommonFG, name string, cube [][][]float64) error {
	nc := len(cube)
	nb, nt := 0, 0
	if nc > 0 {
		nb = len(cube[0])
		if nb > 0 {
			nt = len(cube[0][0])
		}
	}
	flat := make([]float64, 0, nc*nb*nt)
	for _, bands := range cube {
		if len(bands) != nb {
			return errors.Newf("ragged bands in dataset %s", name).
				Component("nwb").
				Category(errors.CategorySerialization).
				Build()
		}
		for _, row := range bands {
			if len(row) != nt {
				return errors.Newf("ragged rows in dataset %s", name).
					Component("nwb").
					Category(errors.CategorySerialization).
					Build()
			}
			flat = append(flat, row...)
		}
	}

	space, err := hdf5.CreateSimpleDataspace([]uint{uint(nc), uint(nb), uint(nt)}, nil)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer space.Close()

	dset, err := fg.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer dset.Close()
	if err := dset.Write(&flat); err != nil {
		return wrapWrite(name, err)
	}
	return nil
}

func putVertexMatrix(fg *hdf5.CommonFG, name string, vertices [][3]float64) error {
	flat := make([]float64, 0, len(vertices)*3)
	for _, v := range vertices {
		flat = append(flat, v[0], v[1], v[2])
	}

	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(vertices)), 3}, nil)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer space.Close()

	dset, err := fg.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer dset.Close()
	if err := dset.Write(&flat); err != nil {
		return wrapWrite(name, err)
	}
	return nil
}

func putFaceMatrix(fg *hdf5.CommonFG, name string, faces [][3]uint32) error {
	flat := make([]uint32, 0, len(faces)*3)
	for _, f := range faces {
		flat = append(flat, f[0], f[1], f[2])
	}

	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(faces)), 3}, nil)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer space.Close()

	dset, err := fg.CreateDataset(name, hdf5.T_NATIVE_UINT32, space)
	if err != nil {
		return wrapWrite(name, err)
	}
	defer dset.Close()
	if err := dset.Write(&flat); err != nil {
		return wrapWrite(name, err)
	}
	return nil
}

func wrapWrite(what string, err error) error {
	return errors.Newf("writing %s: %w", what, err).
		Component("nwb").
		Category(errors.CategorySerialization).
		Build()
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
