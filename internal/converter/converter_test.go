package converter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/hdf5"

	"ecog2nwb/internal/conf"
	"ecog2nwb/internal/nwb"
	"ecog2nwb/internal/testsupport"
)

func testSettings() *conf.Settings {
	return &conf.Settings{
		Session: conf.SessionSettings{
			Institution: "University of California, San Francisco",
			Lab:         "Chang Lab",
		},
		Convert: conf.ConvertSettings{
			Format: conf.FormatHTK,
			Mesh:   conf.MeshNone,
		},
	}
}

// colMajor converts row-wise xyz triples into MATLAB column order.
func colMajor(triples [][3]float64) []float64 {
	n := len(triples)
	out := make([]float64, 0, n*3)
	for c := 0; c < 3; c++ {
		for r := 0; r < n; r++ {
			out = append(out, triples[r][c])
		}
	}
	return out
}

// buildBlock lays out a minimal recording block: three electrodes (two grid,
// one EKG), raw channel files, analog channels, a bad-segment marker and one
// pial mesh. Returns the block path.
func buildBlock(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	block := filepath.Join(base, "EC999_B1")
	imaging := filepath.Join(base, "imaging")

	rows := [][4][]byte{
		testsupport.AnatomyRow("G1", "GridElectrode1", "grid", "precentral"),
		testsupport.AnatomyRow("EKG", "EKGElectrode1", "ekg", ""),
		testsupport.AnatomyRow("G2", "GridElectrode2", "grid", "postcentral"),
	}
	coords := colMajor([][3]float64{{1, 2, 3}, {0, 0, 0}, {4, 5, 6}})
	testsupport.WriteMat(t, filepath.Join(imaging, "elecs", "TDT_elecs_all.mat"),
		testsupport.MatAnatomy(rows),
		testsupport.MatDouble("elecmatrix", 3, 3, coords),
	)

	// raw channels at 400 Hz, one file per anatomy row
	testsupport.WriteHTK(t, filepath.Join(block, "RawHTK", "Wav11.htk"), 25000, [][]float32{{10, 11, 12}})
	testsupport.WriteHTK(t, filepath.Join(block, "RawHTK", "Wav12.htk"), 25000, [][]float32{{20, 21, 22}})
	testsupport.WriteHTK(t, filepath.Join(block, "RawHTK", "Wav13.htk"), 25000, [][]float32{{30, 31, 32}})

	testsupport.WriteWAV(t, filepath.Join(block, "Analog", "analog1.wav"), 16000, []int{1, 2, 3})
	testsupport.WriteWAV(t, filepath.Join(block, "Analog", "analog2.wav"), 16000, []int{4, 5})
	testsupport.WriteWAV(t, filepath.Join(block, "Analog", "analog3.wav"), 16000, []int{6, 7})
	testsupport.WriteHTK(t, filepath.Join(block, "Analog", "ANIN4.htk"), 25000, [][]float32{{8, 9}})

	testsupport.WriteMat(t, filepath.Join(block, "Artifacts", "badTimeSegments.mat"),
		testsupport.MatDouble("badTimeSegments", 2, 2, []float64{1, 5, 2, 6}),
	)

	testsupport.WriteHTK(t, filepath.Join(block, "HilbAA_70to150_8band", "Wav11.htk"), 25000,
		[][]float32{{1, 2}, {3, 4}})
	testsupport.WriteHTK(t, filepath.Join(block, "HilbAA_70to150_8band", "Wav12.htk"), 25000,
		[][]float32{{5, 6}, {7, 8}})

	writePialFixture(t, filepath.Join(imaging, "Meshes", "EC999_lh_pial.mat"), "cortex")
	return block
}

func writePialFixture(t *testing.T, path, structName string) {
	t.Helper()

	// one triangle over three vertices, faces 1-indexed
	tri := testsupport.MatDouble("", 1, 3, []float64{1, 2, 3})
	vert := testsupport.MatDouble("", 3, 3, colMajor([][3]float64{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0},
	}))
	testsupport.WriteMat(t, path,
		testsupport.MatStruct(structName, []string{"tri", "vert"}, [][]byte{tri, vert}),
	)
}

func TestRunFullBlock(t *testing.T) {
	block := buildBlock(t)
	outPath := filepath.Join(t.TempDir(), "EC999_B1.nwb")

	settings := testSettings()
	settings.Convert.Mesh = conf.MeshEmbed
	settings.Convert.Microphone = true
	settings.Convert.Speakers = true
	settings.Convert.Aux = "button_presses"
	settings.Convert.Hilbert = true

	res, err := Run(settings, block, outPath)
	require.NoError(t, err)

	assert.Equal(t, "EC999_B1", res.BlockName)
	assert.Equal(t, "EC999", res.Subject)
	assert.Equal(t, outPath, res.OutPath)
	assert.Equal(t, []string{"Grid"}, res.Devices)
	assert.Equal(t, 2, res.LFPChannels)
	assert.Equal(t, 1, res.EKGChannels)
	assert.Equal(t, 3, res.Frames)
	assert.InDelta(t, 400.0, res.Rate, 1e-9)
	assert.Equal(t, 2, res.BadSegments)
	assert.Equal(t, 1, res.Surfaces)
	assert.Contains(t, res.Series, "LFP")
	assert.Contains(t, res.Series, "EKG")
	assert.Contains(t, res.Series, "button_presses")

	got, err := nwb.ReadFile(outPath)
	require.NoError(t, err)

	assert.Equal(t, "EC999_B1", got.Identifier)
	assert.Equal(t, "EC999_B1", got.SessionDescription)
	assert.Equal(t, "Chang Lab", got.Lab)
	require.NotNil(t, got.Subject)
	assert.Equal(t, "EC999", got.Subject.SubjectID)

	// electrode table holds the two grid electrodes in anatomy order
	require.Len(t, got.Electrodes, 2)
	assert.Equal(t, 0, got.Electrodes[0].ID)
	assert.Equal(t, 2, got.Electrodes[1].ID)
	assert.Equal(t, "precentral", got.Electrodes[0].Location)
	assert.InDelta(t, 4.0, got.Electrodes[1].X, 1e-12)

	require.Len(t, got.AcquisitionElectrical, 1)
	lfp := got.AcquisitionElectrical[0]
	assert.Equal(t, "LFP", lfp.Name)
	assert.Equal(t, [][]float64{{10, 11, 12}, {30, 31, 32}}, lfp.Data)
	assert.InDelta(t, 0.001, lfp.Conversion, 1e-12)
	assert.Equal(t, []int{0, 1}, lfp.Electrodes)

	// EKG row is routed to its own acquisition series
	names := make(map[string][]float64)
	for _, ts := range got.AcquisitionSeries {
		names[ts.Name] = ts.Data
	}
	assert.Equal(t, []float64{20, 21, 22}, names["EKG"])
	assert.Equal(t, []float64{1, 2, 3}, names["microphone"])
	assert.Equal(t, []float64{8, 9}, names["button_presses"])

	require.Len(t, got.StimulusSeries, 2)

	require.Len(t, got.AcquisitionIntervals, 1)
	assert.Equal(t, []float64{1, 2}, got.AcquisitionIntervals[0].Starts)
	assert.Equal(t, []float64{5, 6}, got.AcquisitionIntervals[0].Stops)

	require.Len(t, got.Processing, 1)
	assert.Equal(t, "hilbert", got.Processing[0].Name)
	require.Len(t, got.Processing[0].Hilbert, 1)
	hs := got.Processing[0].Hilbert[0]
	require.Len(t, hs.Data, 2)    // channels
	require.Len(t, hs.Data[0], 2) // bands
	assert.Len(t, hs.FilterCenters, 2)

	require.Len(t, got.Surfaces, 1)
	assert.Equal(t, "EC999_lh_pial", got.Surfaces[0].Name)
	assert.Equal(t, [3]uint32{0, 1, 2}, got.Surfaces[0].Faces[0])
}

func TestRunMatFormat(t *testing.T) {
	block := buildBlock(t)
	writeConsolidatedFixture(t, filepath.Join(block, "ecog400", "ecog.mat"), 400, [][]float64{
		// time x channels over the three anatomy rows
		{10, 20, 30},
		{11, 21, 31},
	})

	settings := testSettings()
	settings.Convert.Format = conf.FormatMat
	outPath := filepath.Join(t.TempDir(), "out.nwb")

	res, err := Run(settings, block, outPath)
	require.NoError(t, err)
	assert.Equal(t, 2, res.LFPChannels)
	assert.Equal(t, 2, res.Frames)

	got, err := nwb.ReadFile(outPath)
	require.NoError(t, err)
	require.Len(t, got.AcquisitionElectrical, 1)
	assert.Equal(t, [][]float64{{10, 11}, {30, 31}}, got.AcquisitionElectrical[0].Data)
}

func TestRunExternalMesh(t *testing.T) {
	block := buildBlock(t)
	outPath := filepath.Join(t.TempDir(), "out.nwb")

	settings := testSettings()
	settings.Convert.Mesh = conf.MeshExternal

	res, err := Run(settings, block, outPath)
	require.NoError(t, err)

	expectedAux := filepath.Join(filepath.Dir(block), "EC999_cortical_surface.nwbaux")
	assert.Equal(t, expectedAux, res.AuxPath)
	_, err = os.Stat(expectedAux)
	require.NoError(t, err)

	got, err := nwb.ReadFile(outPath)
	require.NoError(t, err)
	assert.Empty(t, got.Surfaces)
	require.Len(t, got.SurfaceLinks, 1)
	assert.Equal(t, expectedAux, got.SurfaceLinks[0].FilePath)
	assert.Equal(t, "EC999_lh_pial", got.SurfaceLinks[0].SurfaceName)

	// the aux archive is a readable surfaces file in its own right
	aux, err := nwb.OpenLinkedSurfaces(expectedAux)
	require.NoError(t, err)
	defer aux.Close()
	require.Len(t, aux.Surfaces(), 1)
}

func TestRunMeshModeMissingPialFilesFails(t *testing.T) {
	base := t.TempDir()
	block := filepath.Join(base, "EC000_B1")
	rows := [][4][]byte{
		testsupport.AnatomyRow("G1", "GridElectrode1", "grid", "a"),
	}
	testsupport.WriteMat(t, filepath.Join(base, "imaging", "elecs", "TDT_elecs_all.mat"),
		testsupport.MatAnatomy(rows),
		testsupport.MatDouble("elecmatrix", 1, 3, []float64{1, 2, 3}),
	)
	testsupport.WriteHTK(t, filepath.Join(block, "RawHTK", "Wav11.htk"), 25000, [][]float32{{1}})

	settings := testSettings()
	settings.Convert.Mesh = conf.MeshEmbed

	_, err := Run(settings, block, filepath.Join(base, "out.nwb"))
	assert.Error(t, err)
}

func TestRunRejectsUnknownFormatBeforeOutput(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Convert.Format = "edf"
	outPath := filepath.Join(t.TempDir(), "out.nwb")

	_, err := Run(settings, filepath.Join(t.TempDir(), "EC1_B1"), outPath)
	require.Error(t, err)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr), "no output file may be created")
}

func TestRunMiniTruncates(t *testing.T) {
	block := buildBlock(t)

	// replace the raw channels with recordings longer than the mini cutoff
	long := make([]float32, 2100)
	for i := range long {
		long[i] = float32(i)
	}
	for _, name := range []string{"Wav11.htk", "Wav12.htk", "Wav13.htk"} {
		testsupport.WriteHTK(t, filepath.Join(block, "RawHTK", name), 25000, [][]float32{long})
	}

	settings := testSettings()
	settings.Convert.Mini = true
	outPath := filepath.Join(t.TempDir(), "out.nwb")

	res, err := Run(settings, block, outPath)
	require.NoError(t, err)
	assert.Equal(t, 2000, res.Frames)
}

func TestRunMissingAnalogIsFatal(t *testing.T) {
	block := buildBlock(t)
	require.NoError(t, os.RemoveAll(filepath.Join(block, "Analog")))

	settings := testSettings()
	settings.Convert.Microphone = true

	_, err := Run(settings, block, filepath.Join(t.TempDir(), "out.nwb"))
	assert.Error(t, err)
}

func TestRunWithoutArtifactsDir(t *testing.T) {
	block := buildBlock(t)
	require.NoError(t, os.RemoveAll(filepath.Join(block, "Artifacts")))

	res, err := Run(testSettings(), block, filepath.Join(t.TempDir(), "out.nwb"))
	require.NoError(t, err)
	assert.Zero(t, res.BadSegments)
	assert.NotContains(t, res.Series, "badTimeSegments")
}

func TestSubjectID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "EC999", subjectID("EC999_B1"))
	assert.Equal(t, "EC999", subjectID("EC999_B1_extra"))
	assert.Equal(t, "EC999", subjectID("EC999"))
}

func TestLoadPialSurfaceMeshVariable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "EC1_rh_pial.mat")
	writePialFixture(t, path, "mesh")

	s, err := loadPialSurface(path)
	require.NoError(t, err)
	assert.Equal(t, "EC1_rh_pial", s.Name)
	require.Len(t, s.Vertices, 3)
	require.Len(t, s.Faces, 1)
	assert.Equal(t, [3]uint32{0, 1, 2}, s.Faces[0])
}

func TestLoadPialSurfaceUnknownStructure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad_pial.mat")
	testsupport.WriteMat(t, path, testsupport.MatDouble("something", 1, 1, []float64{1}))

	_, err := loadPialSurface(path)
	assert.Error(t, err)
}

func writeConsolidatedFixture(t *testing.T, path string, rate float64, rows [][]float64) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	require.NoError(t, err)
	defer f.Close()

	g, err := f.CreateGroup("ecogDS")
	require.NoError(t, err)
	defer g.Close()

	frames := len(rows)
	cols := len(rows[0])
	flat := make([]float64, 0, frames*cols)
	for _, row := range rows {
		flat = append(flat, row...)
	}

	space, err := hdf5.CreateSimpleDataspace([]uint{uint(frames), uint(cols)}, nil)
	require.NoError(t, err)
	dset, err := g.CreateDataset("data", hdf5.T_NATIVE_DOUBLE, space)
	require.NoError(t, err)
	require.NoError(t, dset.Write(&flat))
	require.NoError(t, dset.Close())
	require.NoError(t, space.Close())

	rspace, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	require.NoError(t, err)
	rdset, err := g.CreateDataset("sampFreq", hdf5.T_NATIVE_DOUBLE, rspace)
	require.NoError(t, err)
	rateVal := []float64{rate}
	require.NoError(t, rdset.Write(&rateVal))
	require.NoError(t, rdset.Close())
	require.NoError(t, rspace.Close())
}
