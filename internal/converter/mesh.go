package converter

import (
	"log/slog"
	"path/filepath"
	"strings"

	"ecog2nwb/internal/conf"
	"ecog2nwb/internal/errors"
	"ecog2nwb/internal/matfile"
	"ecog2nwb/internal/nwb"
)

// attachMesh handles the cortical mesh modes. In embed mode the pial
// surfaces are copied into the session container; in external mode they are
// written to a per-subject .nwbaux archive which is reopened for read and
// attached by reference. The returned handle, when non-nil, must stay open
// until the session write and verification finish.
func attachMesh(log *slog.Logger, settings *conf.Settings, f *nwb.File, imagingDir, blockPath, subject string, res *Result) (*nwb.LinkedSurfaces, error) {
	if settings.Convert.Mesh == conf.MeshNone {
		return nil, nil
	}

	pialFiles, err := filepath.Glob(filepath.Join(imagingDir, "Meshes", "*pial.mat"))
	if err != nil {
		return nil, errors.New(err).
			Component("converter").
			Category(errors.CategoryFileIO).
			Build()
	}
	if len(pialFiles) == 0 {
		return nil, errors.Newf("mesh mode %q requested but no pial files under %s",
			settings.Convert.Mesh, filepath.Join(imagingDir, "Meshes")).
			Component("converter").
			Category(errors.CategoryFileIO).
			Build()
	}

	surfaces := make([]*nwb.Surface, 0, len(pialFiles))
	for _, path := range pialFiles {
		s, err := loadPialSurface(path)
		if err != nil {
			return nil, err
		}
		surfaces = append(surfaces, s)
	}
	res.Surfaces = len(surfaces)

	switch settings.Convert.Mesh {
	case conf.MeshEmbed:
		for _, s := range surfaces {
			if err := f.AddSurface(s); err != nil {
				return nil, err
			}
		}
		log.Info("embedded cortical surfaces", "count", len(surfaces))
		return nil, nil

	case conf.MeshExternal:
		auxPath := filepath.Join(filepath.Dir(blockPath), subject+"_cortical_surface.nwbaux")
		if err := nwb.WriteSurfacesFile(auxPath, surfaces); err != nil {
			return nil, err
		}

		aux, err := nwb.OpenLinkedSurfaces(auxPath)
		if err != nil {
			return nil, err
		}
		for _, link := range aux.Links() {
			f.LinkSurface(link)
		}
		res.AuxPath = auxPath
		log.Info("linked cortical surfaces", "archive", auxPath, "count", len(surfaces))
		return aux, nil
	}

	// unreachable, modes are validated up front
	return nil, errors.Newf("unknown mesh mode %q", settings.Convert.Mesh).
		Component("converter").
		Category(errors.CategoryConfiguration).
		Build()
}

// loadPialSurface reads one pial mesh MAT-file. The mesh lives in a struct
// variable named cortex or mesh with tri (1-indexed faces) and vert fields.
func loadPialSurface(path string) (*nwb.Surface, error) {
	mat, err := matfile.Open(path)
	if err != nil {
		return nil, err
	}

	var mesh *matfile.Array
	for _, name := range []string{"cortex", "mesh"} {
		if arr, err := mat.Array(name); err == nil {
			mesh = arr
			break
		}
	}
	if mesh == nil || mesh.Class != matfile.ClassStruct {
		return nil, errors.Newf("no cortex or mesh struct in %s", path).
			Component("converter").
			Category(errors.CategoryFileParsing).
			FileContext(path, 0).
			Build()
	}

	tri, vert := mesh.Fields["tri"], mesh.Fields["vert"]
	if tri == nil || vert == nil {
		return nil, errors.Newf("mesh struct in %s lacks tri/vert fields", path).
			Component("converter").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if tri.Cols() != 3 || vert.Cols() != 3 {
		return nil, errors.Newf("mesh in %s is not triangles over 3D points", path).
			Component("converter").
			Category(errors.CategoryFileParsing).
			Build()
	}

	s := &nwb.Surface{Name: surfaceName(path)}
	s.Vertices = make([][3]float64, vert.Rows())
	for i := range s.Vertices {
		s.Vertices[i] = [3]float64{vert.At(i, 0), vert.At(i, 1), vert.At(i, 2)}
	}
	// faces are 1-indexed in the source file
	s.Faces = make([][3]uint32, tri.Rows())
	for i := range s.Faces {
		for j := 0; j < 3; j++ {
			v := tri.At(i, j)
			if v < 1 {
				return nil, errors.Newf("mesh in %s has face index %v below 1", path, v).
					Component("converter").
					Category(errors.CategoryFileParsing).
					Build()
			}
			s.Faces[i][j] = uint32(v) - 1
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func surfaceName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
