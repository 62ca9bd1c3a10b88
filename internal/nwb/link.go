package nwb

import (
	"gonum.org/v1/hdf5"

	"ecog2nwb/internal/errors"
)

// WriteSurfacesFile writes cortical surface geometry to a standalone
// auxiliary archive that session files can then reference by path instead of
// embedding the mesh. The layout mirrors the embedded form so readers treat
// both the same.
func WriteSurfacesFile(path string, surfaces []*Surface) error {
	if len(surfaces) == 0 {
		return errors.Newf("no surfaces to write").
			Component("nwb").
			Category(errors.CategoryValidation).
			Build()
	}
	for _, s := range surfaces {
		if err := s.Validate(); err != nil {
			return err
		}
	}

	h, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return errors.Newf("creating %s: %w", path, err).
			Component("nwb").
			Category(errors.CategorySerialization).
			FileContext(path, 0).
			Build()
	}
	defer h.Close()

	acq, err := h.CreateGroup("acquisition")
	if err != nil {
		return wrapWrite("acquisition", err)
	}
	defer acq.Close()

	return writeSurfaces(acq, surfaces)
}

// LinkedSurfaces holds an auxiliary surfaces archive open for reading. The
// handle must stay open for as long as session files built against it are
// being written and verified; Close releases it.
type LinkedSurfaces struct {
	path     string
	file     *hdf5.File
	surfaces []*Surface
}

// OpenLinkedSurfaces opens an archive written by WriteSurfacesFile and loads
// its surface geometry. Surfaces keep the archive's iteration order.
func OpenLinkedSurfaces(path string) (*LinkedSurfaces, error) {
	h, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, errors.Newf("opening %s: %w", path, err).
			Component("nwb").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	acq, err := h.OpenGroup("acquisition")
	if err != nil {
		h.Close()
		return nil, wrapRead("acquisition", err)
	}
	root, err := acq.OpenGroup("cortical_surfaces")
	acq.Close()
	if err != nil {
		h.Close()
		return nil, wrapRead("cortical_surfaces", err)
	}
	defer root.Close()

	ls := &LinkedSurfaces{path: path, file: h}
	err = eachChild(&root.CommonFG, func(name string) error {
		g, err := root.OpenGroup(name)
		if err != nil {
			return wrapRead("surface "+name, err)
		}
		defer g.Close()

		s, err := readSurfaceGeometry(g, name)
		if err != nil {
			return err
		}
		ls.surfaces = append(ls.surfaces, s)
		return nil
	})
	if err != nil {
		h.Close()
		return nil, err
	}
	return ls, nil
}

// Path returns the archive path the handle was opened from.
func (ls *LinkedSurfaces) Path() string {
	return ls.path
}

// Surfaces returns the loaded surface geometry in archive order.
func (ls *LinkedSurfaces) Surfaces() []*Surface {
	return ls.surfaces
}

// Links returns one link record per surface, for attaching to a session
// container by reference.
func (ls *LinkedSurfaces) Links() []SurfaceLink {
	links := make([]SurfaceLink, 0, len(ls.surfaces))
	for _, s := range ls.surfaces {
		links = append(links, SurfaceLink{FilePath: ls.path, SurfaceName: s.Name})
	}
	return links
}

// Close releases the underlying archive handle.
func (ls *LinkedSurfaces) Close() error {
	if ls.file == nil {
		return nil
	}
	err := ls.file.Close()
	ls.file = nil
	return err
}
