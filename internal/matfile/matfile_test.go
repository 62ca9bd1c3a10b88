package matfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecog2nwb/internal/errors"
	"ecog2nwb/internal/testsupport"
)

func TestParseDoubleMatrixColumnMajor(t *testing.T) {
	t.Parallel()

	// 2x3 matrix [[1 3 5] [2 4 6]] stored column-major
	raw := testsupport.MatBytes(
		testsupport.MatDouble("elecmatrix", 2, 3, []float64{1, 2, 3, 4, 5, 6}))

	f, err := Parse(raw)
	require.NoError(t, err)

	arr, err := f.Array("elecmatrix")
	require.NoError(t, err)
	assert.Equal(t, ClassDouble, arr.Class)
	assert.Equal(t, 2, arr.Rows())
	assert.Equal(t, 3, arr.Cols())
	assert.InDelta(t, 1.0, arr.At(0, 0), 1e-12)
	assert.InDelta(t, 3.0, arr.At(0, 1), 1e-12)
	assert.InDelta(t, 5.0, arr.At(0, 2), 1e-12)
	assert.InDelta(t, 2.0, arr.At(1, 0), 1e-12)
	assert.InDelta(t, 6.0, arr.At(1, 2), 1e-12)
}

func TestParseCharArray(t *testing.T) {
	t.Parallel()

	raw := testsupport.MatBytes(testsupport.MatChar("label", "LFP1"))

	f, err := Parse(raw)
	require.NoError(t, err)

	arr, err := f.Array("label")
	require.NoError(t, err)
	assert.Equal(t, ClassChar, arr.Class)
	assert.Equal(t, "LFP1", arr.Chars)
}

func TestParseCellArrayOfChars(t *testing.T) {
	t.Parallel()

	// 2x2 cell array, column-major element order
	cells := [][]byte{
		testsupport.MatChar("", "G1"),    // (0,0)
		testsupport.MatChar("", "G2"),    // (1,0)
		testsupport.MatChar("", "front"), // (0,1)
		testsupport.MatChar("", "back"),  // (1,1)
	}
	raw := testsupport.MatBytes(testsupport.MatCell("anatomy", 2, 2, cells))

	f, err := Parse(raw)
	require.NoError(t, err)

	arr, err := f.Array("anatomy")
	require.NoError(t, err)
	require.Equal(t, ClassCell, arr.Class)
	require.Len(t, arr.Cells, 4)
	assert.Equal(t, "G1", arr.Cell(0, 0).Chars)
	assert.Equal(t, "G2", arr.Cell(1, 0).Chars)
	assert.Equal(t, "front", arr.Cell(0, 1).Chars)
	assert.Equal(t, "back", arr.Cell(1, 1).Chars)
}

func TestParseStructWithMeshFields(t *testing.T) {
	t.Parallel()

	tri := testsupport.MatDouble("", 2, 3, []float64{1, 2, 2, 3, 3, 4})
	vert := testsupport.MatDouble("", 4, 3, []float64{
		0, 1, 2, 3,
		10, 11, 12, 13,
		20, 21, 22, 23,
	})
	raw := testsupport.MatBytes(
		testsupport.MatStruct("cortex", []string{"tri", "vert"}, [][]byte{tri, vert}))

	f, err := Parse(raw)
	require.NoError(t, err)

	arr, err := f.Array("cortex")
	require.NoError(t, err)
	require.Equal(t, ClassStruct, arr.Class)
	require.Contains(t, arr.Fields, "tri")
	require.Contains(t, arr.Fields, "vert")

	assert.Equal(t, 2, arr.Fields["tri"].Rows())
	assert.Equal(t, 3, arr.Fields["tri"].Cols())
	assert.InDelta(t, 13.0, arr.Fields["vert"].At(3, 1), 1e-12)
}

func TestParseCompressedElement(t *testing.T) {
	t.Parallel()

	inner := testsupport.MatDouble("badTimeSegments", 2, 2, []float64{1.5, 4.0, 2.5, 5.0})

	compressed := &bytes.Buffer{}
	zw := zlib.NewWriter(compressed)
	_, err := zw.Write(inner)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	raw := testsupport.MatBytes(testsupport.MatFullElement(miCOMPRESSED, compressed.Bytes()))

	f, err := Parse(raw)
	require.NoError(t, err)

	arr, err := f.Array("badTimeSegments")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, arr.At(0, 0), 1e-12)
	assert.InDelta(t, 2.5, arr.At(0, 1), 1e-12)
	assert.InDelta(t, 4.0, arr.At(1, 0), 1e-12)
	assert.InDelta(t, 5.0, arr.At(1, 1), 1e-12)
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("not a mat file"))
	assert.Error(t, err)

	head := testsupport.MatHeader()
	copy(head[126:128], "XX")
	_, err = Parse(head)
	assert.Error(t, err)
}

func TestParseErrorsCarryParsingCategory(t *testing.T) {
	t.Parallel()

	badVersion := testsupport.MatHeader()
	binary.LittleEndian.PutUint16(badVersion[124:126], 0x0200)

	overrun := testsupport.MatHeader()
	tag := make([]byte, 8)
	binary.LittleEndian.PutUint32(tag[0:4], miMATRIX)
	binary.LittleEndian.PutUint32(tag[4:8], 1<<20)
	overrun = append(overrun, tag...)

	tests := []struct {
		name string
		raw  []byte
	}{
		{"unsupported version", badVersion},
		{"element overruns file", overrun},
		{"corrupt compressed element", testsupport.MatBytes(
			testsupport.MatFullElement(miCOMPRESSED, []byte{0xde, 0xad, 0xbe, 0xef}))},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tc.raw)
			require.Error(t, err)
			var ee *errors.EnhancedError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, errors.CategoryFileParsing, ee.Category)
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "TDT_elecs_all.mat"))
	assert.Error(t, err)
}

func TestOpenRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fixture.mat")
	require.NoError(t, os.WriteFile(path, testsupport.MatBytes(testsupport.MatChar("x", "ok")), 0o644))

	f, err := Open(path)
	require.NoError(t, err)
	arr, err := f.Array("x")
	require.NoError(t, err)
	assert.Equal(t, "ok", arr.Chars)
}

func TestMissingVariable(t *testing.T) {
	t.Parallel()

	f, err := Parse(testsupport.MatBytes(testsupport.MatChar("x", "ok")))
	require.NoError(t, err)
	_, err = f.Array("anatomy")
	assert.Error(t, err)
}
