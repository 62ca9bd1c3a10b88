package nwb

import (
	"time"

	"gonum.org/v1/hdf5"

	"ecog2nwb/internal/errors"
)

// ReadFile opens an archive written by WriteFile and reconstructs the
// session container. It is used as the verification step after a write.
func ReadFile(path string) (*File, error) {
	h, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, errors.Newf("opening %s: %w", path, err).
			Component("nwb").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer h.Close()

	f := &File{}
	if err := readRoot(h, f); err != nil {
		return nil, err
	}
	if err := readGeneral(h, f); err != nil {
		return nil, err
	}
	if err := readAcquisition(h, f); err != nil {
		return nil, err
	}
	if err := readStimulus(h, f); err != nil {
		return nil, err
	}
	if err := readProcessing(h, f); err != nil {
		return nil, err
	}
	return f, nil
}

func readRoot(h *hdf5.File, f *File) error {
	fg := &h.CommonFG

	desc, err := getString(fg, "session_description")
	if err != nil {
		return err
	}
	f.SessionDescription = desc

	id, err := getString(fg, "identifier")
	if err != nil {
		return err
	}
	f.Identifier = id

	start, err := getString(fg, "session_start_time")
	if err != nil {
		return err
	}
	f.SessionStartTime, err = time.Parse(time.RFC3339, start)
	if err != nil {
		return errors.Newf("parsing session_start_time %q: %w", start, err).
			Component("nwb").
			Category(errors.CategoryFileParsing).
			Build()
	}

	created, err := getString(fg, "file_create_date")
	if err != nil {
		return err
	}
	f.FileCreateDate, err = time.Parse(time.RFC3339, created)
	if err != nil {
		return errors.Newf("parsing file_create_date %q: %w", created, err).
			Component("nwb").
			Category(errors.CategoryFileParsing).
			Build()
	}
	return nil
}

func readGeneral(h *hdf5.File, f *File) error {
	general, err := h.OpenGroup("general")
	if err != nil {
		return nil // no general metadata written
	}
	defer general.Close()

	fg := &general.CommonFG
	f.Institution, _ = getString(fg, "institution")
	f.Lab, _ = getString(fg, "lab")

	if devices, err := general.OpenGroup("devices"); err == nil {
		err = eachChild(&devices.CommonFG, func(name string) error {
			f.Devices = append(f.Devices, &Device{Name: name})
			return nil
		})
		devices.Close()
		if err != nil {
			return err
		}
	}

	if err := readEphys(general, f); err != nil {
		return err
	}
	if err := readSubject(general, f); err != nil {
		return err
	}
	return readSurgeries(general, f)
}

func readEphys(general *hdf5.Group, f *File) error {
	ephys, err := general.OpenGroup("extracellular_ephys")
	if err != nil {
		return nil
	}
	defer ephys.Close()

	err = eachChild(&ephys.CommonFG, func(name string) error {
		if name == "electrodes" {
			return nil
		}
		g, err := ephys.OpenGroup(name)
		if err != nil {
			return wrapRead("electrode group "+name, err)
		}
		defer g.Close()

		fg := &g.CommonFG
		eg := &ElectrodeGroup{Name: name}
		eg.Description, _ = getString(fg, "description")
		eg.Location, _ = getString(fg, "location")
		eg.Device, _ = getString(fg, "device")
		f.ElectrodeGroups = append(f.ElectrodeGroups, eg)
		return nil
	})
	if err != nil {
		return err
	}

	return readElectrodeTable(ephys, f)
}

func readElectrodeTable(ephys *hdf5.Group, f *File) error {
	table, err := ephys.OpenGroup("electrodes")
	if err != nil {
		return nil
	}
	defer table.Close()

	fg := &table.CommonFG
	ids, err := getIntSlice(fg, "id")
	if err != nil {
		return err
	}
	xs, err := getFloatSlice(fg, "x")
	if err != nil {
		return err
	}
	ys, err := getFloatSlice(fg, "y")
	if err != nil {
		return err
	}
	zs, err := getFloatSlice(fg, "z")
	if err != nil {
		return err
	}
	imps, err := getFloatSlice(fg, "imp")
	if err != nil {
		return err
	}
	locations, err := getStringSlice(fg, "location")
	if err != nil {
		return err
	}
	filterings, err := getStringSlice(fg, "filtering")
	if err != nil {
		return err
	}
	groups, err := getStringSlice(fg, "group_name")
	if err != nil {
		return err
	}

	n := len(ids)
	if len(xs) != n || len(ys) != n || len(zs) != n || len(imps) != n ||
		len(locations) != n || len(filterings) != n || len(groups) != n {
		return errors.Newf("electrode table columns have mismatched lengths").
			Component("nwb").
			Category(errors.CategoryIntegrity).
			Build()
	}

	for i := 0; i < n; i++ {
		f.Electrodes = append(f.Electrodes, Electrode{
			ID:        int(ids[i]),
			X:         xs[i],
			Y:         ys[i],
			Z:         zs[i],
			Impedance: imps[i],
			Location:  locations[i],
			Filtering: filterings[i],
			Group:     groups[i],
		})
	}
	return nil
}

func readSubject(general *hdf5.Group, f *File) error {
	g, err := general.OpenGroup("subject")
	if err != nil {
		return nil
	}
	defer g.Close()

	fg := &g.CommonFG
	s := &Subject{}
	s.SubjectID, _ = getString(fg, "subject_id")
	s.Species, _ = getString(fg, "species")
	s.Sex, _ = getString(fg, "sex")
	s.Age, _ = getString(fg, "age")
	s.Description, _ = getString(fg, "description")
	f.Subject = s
	return nil
}

func readSurgeries(general *hdf5.Group, f *File) error {
	root, err := general.OpenGroup("surgeries")
	if err != nil {
		return nil
	}
	defer root.Close()

	return eachChild(&root.CommonFG, func(name string) error {
		g, err := root.OpenGroup(name)
		if err != nil {
			return wrapRead("surgery "+name, err)
		}
		defer g.Close()

		fg := &g.CommonFG
		s := &Surgery{Name: name}
		s.Notes, _ = getString(fg, "notes")
		s.Anesthesia, _ = getString(fg, "anesthesia")
		s.TargetAnatomy, _ = getString(fg, "target_anatomy")

		if vroot, err := g.OpenGroup("virus_injections"); err == nil {
			err = eachChild(&vroot.CommonFG, func(viName string) error {
				vg, err := vroot.OpenGroup(viName)
				if err != nil {
					return wrapRead("virus injection "+viName, err)
				}
				defer vg.Close()

				vfg := &vg.CommonFG
				vi := VirusInjection{Name: viName}
				coords, err := getFloatSlice(vfg, "coordinates")
				if err != nil {
					return err
				}
				copy(vi.Coordinates[:], coords)
				vi.Virus, _ = getString(vfg, "virus")
				vol, err := getFloatSlice(vfg, "volume_nl")
				if err != nil {
					return err
				}
				if len(vol) > 0 {
					vi.VolumeNL = vol[0]
				}
				s.VirusInjections = append(s.VirusInjections, vi)
				return nil
			})
			vroot.Close()
			if err != nil {
				return err
			}
		}

		f.Surgeries = append(f.Surgeries, s)
		return nil
	})
}

func readAcquisition(h *hdf5.File, f *File) error {
	acq, err := h.OpenGroup("acquisition")
	if err != nil {
		return nil
	}
	defer acq.Close()

	return eachChild(&acq.CommonFG, func(name string) error {
		switch name {
		case "cortical_surfaces":
			return readSurfaces(acq, f)
		case "cortical_surface_links":
			return readSurfaceLinks(acq, f)
		}

		g, err := acq.OpenGroup(name)
		if err != nil {
			return wrapRead("acquisition series "+name, err)
		}
		defer g.Close()

		kind, err := getString(&g.CommonFG, "neurodata_type")
		if err != nil {
			return err
		}
		switch kind {
		case typeTimeSeries:
			ts, err := readTimeSeries(g, name)
			if err != nil {
				return err
			}
			f.AcquisitionSeries = append(f.AcquisitionSeries, ts)
		case typeElectricalSeries:
			es, err := readElectricalSeries(g, name)
			if err != nil {
				return err
			}
			f.AcquisitionElectrical = append(f.AcquisitionElectrical, es)
		case typeIntervalSeries:
			is, err := readIntervalSeries(g, name)
			if err != nil {
				return err
			}
			f.AcquisitionIntervals = append(f.AcquisitionIntervals, is)
		default:
			return errors.Newf("series %s has unknown type %q", name, kind).
				Component("nwb").
				Category(errors.CategoryFileParsing).
				Build()
		}
		return nil
	})
}

func readStimulus(h *hdf5.File, f *File) error {
	stim, err := h.OpenGroup("stimulus/presentation")
	if err != nil {
		return nil
	}
	defer stim.Close()

	return eachChild(&stim.CommonFG, func(name string) error {
		g, err := stim.OpenGroup(name)
		if err != nil {
			return wrapRead("stimulus series "+name, err)
		}
		defer g.Close()

		ts, err := readTimeSeries(g, name)
		if err != nil {
			return err
		}
		f.StimulusSeries = append(f.StimulusSeries, ts)
		return nil
	})
}

func readProcessing(h *hdf5.File, f *File) error {
	root, err := h.OpenGroup("processing")
	if err != nil {
		return nil
	}
	defer root.Close()

	return eachChild(&root.CommonFG, func(name string) error {
		g, err := root.OpenGroup(name)
		if err != nil {
			return wrapRead("processing module "+name, err)
		}
		defer g.Close()

		pm := &ProcessingModule{Name: name}
		pm.Description, _ = getString(&g.CommonFG, "description")

		err = eachGroupChild(&g.CommonFG, func(child string) error {
			sg, err := g.OpenGroup(child)
			if err != nil {
				return wrapRead("hilbert series "+child, err)
			}
			defer sg.Close()

			hs, err := readHilbertSeries(sg, child)
			if err != nil {
				return err
			}
			pm.Hilbert = append(pm.Hilbert, hs)
			return nil
		})
		if err != nil {
			return err
		}
		f.Processing = append(f.Processing, pm)
		return nil
	})
}

func readTimeSeries(g *hdf5.Group, name string) (*TimeSeries, error) {
	fg := &g.CommonFG
	ts := &TimeSeries{Name: name}

	data, err := getFloatSlice(fg, "data")
	if err != nil {
		return nil, err
	}
	ts.Data = data

	rate, err := getFloatSlice(fg, "rate")
	if err != nil {
		return nil, err
	}
	if len(rate) > 0 {
		ts.Rate = rate[0]
	}
	conv, err := getFloatSlice(fg, "conversion")
	if err != nil {
		return nil, err
	}
	if len(conv) > 0 {
		ts.Conversion = conv[0]
	}
	ts.Unit, _ = getString(fg, "unit")
	ts.Description, _ = getString(fg, "description")
	return ts, nil
}

func readElectricalSeries(g *hdf5.Group, name string) (*ElectricalSeries, error) {
	fg := &g.CommonFG
	es := &ElectricalSeries{Name: name}

	data, err := getFloatMatrix(fg, "data")
	if err != nil {
		return nil, err
	}
	es.Data = data

	rate, err := getFloatSlice(fg, "rate")
	if err != nil {
		return nil, err
	}
	if len(rate) > 0 {
		es.Rate = rate[0]
	}
	conv, err := getFloatSlice(fg, "conversion")
	if err != nil {
		return nil, err
	}
	if len(conv) > 0 {
		es.Conversion = conv[0]
	}
	es.Unit, _ = getString(fg, "unit")
	es.Description, _ = getString(fg, "description")

	region, err := getIntSlice(fg, "electrodes")
	if err != nil {
		return nil, err
	}
	es.Electrodes = make([]int, len(region))
	for i, v := range region {
		es.Electrodes[i] = int(v)
	}
	return es, nil
}

func readIntervalSeries(g *hdf5.Group, name string) (*IntervalSeries, error) {
	fg := &g.CommonFG
	is := &IntervalSeries{Name: name}
	is.Description, _ = getString(fg, "description")

	starts, err := getFloatSlice(fg, "start_times")
	if err != nil {
		return nil, err
	}
	stops, err := getFloatSlice(fg, "stop_times")
	if err != nil {
		return nil, err
	}
	if len(starts) != len(stops) {
		return nil, errors.Newf("interval series %s has %d starts and %d stops", name, len(starts), len(stops)).
			Component("nwb").
			Category(errors.CategoryIntegrity).
			Build()
	}
	is.Starts, is.Stops = starts, stops
	return is, nil
}

func readHilbertSeries(g *hdf5.Group, name string) (*HilbertSeries, error) {
	fg := &g.CommonFG
	hs := &HilbertSeries{Name: name}

	data, err := getFloatCube(fg, "data")
	if err != nil {
		return nil, err
	}
	hs.Data = data

	rate, err := getFloatSlice(fg, "rate")
	if err != nil {
		return nil, err
	}
	if len(rate) > 0 {
		hs.Rate = rate[0]
	}
	hs.FilterCenters, err = getFloatSlice(fg, "filter_centers")
	if err != nil {
		return nil, err
	}
	hs.FilterSigmas, err = getFloatSlice(fg, "filter_sigmas")
	if err != nil {
		return nil, err
	}

	region, err := getIntSlice(fg, "electrodes")
	if err != nil {
		return nil, err
	}
	hs.Electrodes = make([]int, len(region))
	for i, v := range region {
		hs.Electrodes[i] = int(v)
	}
	return hs, nil
}

func readSurfaces(acq *hdf5.Group, f *File) error {
	root, err := acq.OpenGroup("cortical_surfaces")
	if err != nil {
		return wrapRead("cortical_surfaces", err)
	}
	defer root.Close()

	return eachChild(&root.CommonFG, func(name string) error {
		g, err := root.OpenGroup(name)
		if err != nil {
			return wrapRead("surface "+name, err)
		}
		defer g.Close()

		s, err := readSurfaceGeometry(g, name)
		if err != nil {
			return err
		}
		f.Surfaces = append(f.Surfaces, s)
		return nil
	})
}

func readSurfaceGeometry(g *hdf5.Group, name string) (*Surface, error) {
	fg := &g.CommonFG
	s := &Surface{Name: name}

	vertices, err := getFloatMatrix(fg, "vertices")
	if err != nil {
		return nil, err
	}
	s.Vertices = make([][3]float64, len(vertices))
	for i, row := range vertices {
		if len(row) != 3 {
			return nil, errors.Newf("surface %s vertex %d has %d coordinates", name, i, len(row)).
				Component("nwb").
				Category(errors.CategoryIntegrity).
				Build()
		}
		copy(s.Vertices[i][:], row)
	}

	faces, err := getUintMatrix(fg, "faces")
	if err != nil {
		return nil, err
	}
	s.Faces = make([][3]uint32, len(faces))
	for i, row := range faces {
		if len(row) != 3 {
			return nil, errors.Newf("surface %s face %d has %d indices", name, i, len(row)).
				Component("nwb").
				Category(errors.CategoryIntegrity).
				Build()
		}
		copy(s.Faces[i][:], row)
	}
	return s, nil
}

func readSurfaceLinks(acq *hdf5.Group, f *File) error {
	root, err := acq.OpenGroup("cortical_surface_links")
	if err != nil {
		return wrapRead("cortical_surface_links", err)
	}
	defer root.Close()

	return eachChild(&root.CommonFG, func(name string) error {
		g, err := root.OpenGroup(name)
		if err != nil {
			return wrapRead("surface link "+name, err)
		}
		defer g.Close()

		path, err := getString(&g.CommonFG, "external_file")
		if err != nil {
			return err
		}
		f.SurfaceLinks = append(f.SurfaceLinks, SurfaceLink{
			FilePath:    path,
			SurfaceName: name,
		})
		return nil
	})
}

// --- low-level dataset helpers ---

// eachChild calls fn for every object name directly under fg, in index order.
func eachChild(fg *hdf5.CommonFG, fn func(name string) error) error {
	n, err := fg.NumObjects()
	if err != nil {
		return wrapRead("listing group children", err)
	}
	for i := uint(0); i < n; i++ {
		name, err := fg.ObjectNameByIndex(i)
		if err != nil {
			return wrapRead("listing group children", err)
		}
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}

// eachGroupChild visits only the group-typed children, so dataset
// siblings (description, metadata scalars) are skipped without
// masking open failures on real subgroups.
func eachGroupChild(fg *hdf5.CommonFG, fn func(name string) error) error {
	n, err := fg.NumObjects()
	if err != nil {
		return wrapRead("listing group children", err)
	}
	for i := uint(0); i < n; i++ {
		typ, err := fg.ObjectTypeByIndex(i)
		if err != nil {
			return wrapRead("listing group children", err)
		}
		if typ != hdf5.H5G_GROUP {
			continue
		}
		name, err := fg.ObjectNameByIndex(i)
		if err != nil {
			return wrapRead("listing group children", err)
		}
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}

func getString(fg *hdf5.CommonFG, name string) (string, error) {
	dset, err := fg.OpenDataset(name)
	if err != nil {
		return "", wrapRead(name, err)
	}
	defer dset.Close()

	values := make([]string, 1)
	if err := dset.Read(&values); err != nil {
		return "", wrapRead(name, err)
	}
	return values[0], nil
}

func getStringSlice(fg *hdf5.CommonFG, name string) ([]string, error) {
	dset, err := fg.OpenDataset(name)
	if err != nil {
		return nil, wrapRead(name, err)
	}
	defer dset.Close()

	n, err := datasetLen(dset, name)
	if err != nil {
		return nil, err
	}
	values := make([]string, n)
	if n == 0 {
		return values, nil
	}
	if err := dset.Read(&values); err != nil {
		return nil, wrapRead(name, err)
	}
	return values, nil
}

func getFloatSlice(fg *hdf5.CommonFG, name string) ([]float64, error) {
	dset, err := fg.OpenDataset(name)
	if err != nil {
		return nil, wrapRead(name, err)
	}
	defer dset.Close()

	n, err := datasetLen(dset, name)
	if err != nil {
		return nil, err
	}
	values := make([]float64, n)
	if n == 0 {
		return values, nil
	}
	if err := dset.Read(&values); err != nil {
		return nil, wrapRead(name, err)
	}
	return values, nil
}

func getIntSlice(fg *hdf5.CommonFG, name string) ([]int32, error) {
	dset, err := fg.OpenDataset(name)
	if err != nil {
		return nil, wrapRead(name, err)
	}
	defer dset.Close()

	n, err := datasetLen(dset, name)
	if err != nil {
		return nil, err
	}
	values := make([]int32, n)
	if n == 0 {
		return values, nil
	}
	if err := dset.Read(&values); err != nil {
		return nil, wrapRead(name, err)
	}
	return values, nil
}

func getFloatMatrix(fg *hdf5.CommonFG, name string) ([][]float64, error) {
	dset, err := fg.OpenDataset(name)
	if err != nil {
		return nil, wrapRead(name, err)
	}
	defer dset.Close()

	dims, err := datasetDims(dset, name, 2)
	if err != nil {
		return nil, err
	}
	nrows, ncols := dims[0], dims[1]
	flat := make([]float64, nrows*ncols)
	if len(flat) > 0 {
		if err := dset.Read(&flat); err != nil {
			return nil, wrapRead(name, err)
		}
	}

	rows := make([][]float64, nrows)
	for i := range rows {
		rows[i] = flat[i*ncols : (i+1)*ncols]
	}
	return rows, nil
}

func getUintMatrix(fg *hdf5.CommonFG, name string) ([][]uint32, error) {
	dset, err := fg.OpenDataset(name)
	if err != nil {
		return nil, wrapRead(name, err)
	}
	defer dset.Close()

	dims, err := datasetDims(dset, name, 2)
	if err != nil {
		return nil, err
	}
	nrows, ncols := dims[0], dims[1]
	flat := make([]uint32, nrows*ncols)
	if len(flat) > 0 {
		if err := dset.Read(&flat); err != nil {
			return nil, wrapRead(name, err)
		}
	}

	rows := make([][]uint32, nrows)
	for i := range rows {
		rows[i] = flat[i*ncols : (i+1)*ncols]
	}
	return rows, nil
}

func getFloatCube(fg *hdf5.CommonFG, name string) ([][][]float64, error) {
	dset, err := fg.OpenDataset(name)
	if err != nil {
		return nil, wrapRead(name, err)
	}
	defer dset.Close()

	dims, err := datasetDims(dset, name, 3)
	if err != nil {
		return nil, err
	}
	nc, nb, nt := dims[0], dims[1], dims[2]
	flat := make([]float64, nc*nb*nt)
	if len(flat) > 0 {
		if err := dset.Read(&flat); err != nil {
			return nil, wrapRead(name, err)
		}
	}

	cube := make([][][]float64, nc)
	for c := 0; c < nc; c++ {
		cube[c] = make([][]float64, nb)
		for b := 0; b < nb; b++ {
			off := (c*nb + b) * nt
			cube[c][b] = flat[off : off+nt]
		}
	}
	return cube, nil
}

func datasetLen(dset *hdf5.Dataset, name string) (int, error) {
	dims, err := datasetDims(dset, name, 1)
	if err != nil {
		return 0, err
	}
	return dims[0], nil
}

func datasetDims(dset *hdf5.Dataset, name string, want int) ([]int, error) {
	space := dset.Space()
	defer space.Close()

	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, wrapRead(name, err)
	}
	if len(dims) != want {
		return nil, errors.Newf("dataset %s has %d dimensions, expected %d", name, len(dims), want).
			Component("nwb").
			Category(errors.CategoryFileParsing).
			Build()
	}
	out := make([]int, want)
	for i, d := range dims {
		out[i] = int(d)
	}
	return out, nil
}

func wrapRead(what string, err error) error {
	return errors.Newf("reading %s: %w", what, err).
		Component("nwb").
		Category(errors.CategoryFileParsing).
		Build()
}
