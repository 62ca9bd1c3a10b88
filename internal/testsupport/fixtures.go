// Package testsupport builds the lab-format fixture files the converter
// tests consume: Level 5 MAT-files, HTK channel files and analog WAV files.
package testsupport

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MAT-file element type and class codes used by the builders.
const (
	miINT8   = 1
	miINT32  = 5
	miUINT16 = 4
	miUINT32 = 6
	miDOUBLE = 9
	miMATRIX = 14

	classCell   = 1
	classStruct = 2
	classChar   = 4
	classDouble = 6
)

// MatHeader returns a little-endian Level 5 MAT-file header.
func MatHeader() []byte {
	head := make([]byte, 128)
	copy(head, []byte("MATLAB 5.0 MAT-file, ecog2nwb test fixture"))
	binary.LittleEndian.PutUint16(head[124:126], 0x0100)
	copy(head[126:128], "IM")
	return head
}

// MatFullElement wraps payload in a full element tag, padded to 8 bytes.
func MatFullElement(dataType uint32, payload []byte) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, dataType)
	binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	if pad := (8 - len(payload)%8) % 8; pad > 0 {
		buf.Write(make([]byte, pad))
	}
	return buf.Bytes()
}

// MatSmallElement encodes payload (at most 4 bytes) in the compact format.
func MatSmallElement(dataType uint32, payload []byte) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:4], dataType|uint32(len(payload))<<16)
	copy(out[4:], payload)
	return out
}

func matName(name string) []byte {
	if len(name) <= 4 {
		return MatSmallElement(miINT8, []byte(name))
	}
	return MatFullElement(miINT8, []byte(name))
}

func matMatrix(class uint8, dims []int32, name string, body []byte) []byte {
	payload := &bytes.Buffer{}

	flags := make([]byte, 8)
	flags[0] = class
	payload.Write(MatFullElement(miUINT32, flags))

	dimsRaw := &bytes.Buffer{}
	for _, d := range dims {
		binary.Write(dimsRaw, binary.LittleEndian, d)
	}
	payload.Write(MatFullElement(miINT32, dimsRaw.Bytes()))
	payload.Write(matName(name))
	payload.Write(body)

	return MatFullElement(miMATRIX, payload.Bytes())
}

// MatDouble encodes a rows x cols double matrix; values are column-major,
// as MATLAB stores them.
func MatDouble(name string, rows, cols int, colMajor []float64) []byte {
	body := &bytes.Buffer{}
	for _, v := range colMajor {
		binary.Write(body, binary.LittleEndian, math.Float64bits(v))
	}
	return matMatrix(classDouble, []int32{int32(rows), int32(cols)}, name,
		MatFullElement(miDOUBLE, body.Bytes()))
}

// MatChar encodes a 1xN char array with UTF-16 storage.
func MatChar(name, text string) []byte {
	body := &bytes.Buffer{}
	for _, r := range text {
		binary.Write(body, binary.LittleEndian, uint16(r))
	}
	return matMatrix(classChar, []int32{1, int32(len(text))}, name,
		MatFullElement(miUINT16, body.Bytes()))
}

// MatCell encodes a rows x cols cell array; cells are serialized matrix
// elements in column-major order.
func MatCell(name string, rows, cols int, cells [][]byte) []byte {
	body := &bytes.Buffer{}
	for _, c := range cells {
		body.Write(c)
	}
	return matMatrix(classCell, []int32{int32(rows), int32(cols)}, name, body.Bytes())
}

// MatStruct encodes a 1x1 struct with the given fields.
func MatStruct(name string, fieldNames []string, fieldValues [][]byte) []byte {
	body := &bytes.Buffer{}

	lenRaw := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenRaw, 32)
	body.Write(MatSmallElement(miINT32, lenRaw))

	names := &bytes.Buffer{}
	for _, f := range fieldNames {
		padded := make([]byte, 32)
		copy(padded, f)
		names.Write(padded)
	}
	body.Write(MatFullElement(miINT8, names.Bytes()))

	for _, v := range fieldValues {
		body.Write(v)
	}
	return matMatrix(classStruct, []int32{1, 1}, name, body.Bytes())
}

// MatBytes concatenates a MAT header with the given top-level elements.
func MatBytes(elements ...[]byte) []byte {
	buf := &bytes.Buffer{}
	buf.Write(MatHeader())
	for _, e := range elements {
		buf.Write(e)
	}
	return buf.Bytes()
}

// WriteMat writes a MAT-file composed of the given elements.
func WriteMat(t testing.TB, path string, elements ...[]byte) {
	t.Helper()
	writeFile(t, path, MatBytes(elements...))
}

// AnatomyRow builds the four char cells of one anatomy row.
func AnatomyRow(short, long, typ, loc string) [4][]byte {
	return [4][]byte{
		MatChar("", short),
		MatChar("", long),
		MatChar("", typ),
		MatChar("", loc),
	}
}

// MatAnatomy encodes the Nx4 anatomy cell array in column-major cell order.
func MatAnatomy(rows [][4][]byte) []byte {
	n := len(rows)
	cells := make([][]byte, 0, n*4)
	for col := 0; col < 4; col++ {
		for _, row := range rows {
			cells = append(cells, row[col])
		}
	}
	return MatCell("anatomy", n, 4, cells)
}

// HTKBytes encodes an HTK stream with the given per-band sample rows.
func HTKBytes(samplePeriod int32, data [][]float32) []byte {
	bands := len(data)
	frames := 0
	if bands > 0 {
		frames = len(data[0])
	}

	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, int32(frames))
	binary.Write(buf, binary.BigEndian, samplePeriod)
	binary.Write(buf, binary.BigEndian, int16(bands*4))
	binary.Write(buf, binary.BigEndian, int16(0))
	for f := 0; f < frames; f++ {
		for b := 0; b < bands; b++ {
			binary.Write(buf, binary.BigEndian, data[b][f])
		}
	}
	return buf.Bytes()
}

// WriteHTK writes one HTK channel file.
func WriteHTK(t testing.TB, path string, samplePeriod int32, data [][]float32) {
	t.Helper()
	writeFile(t, path, HTKBytes(samplePeriod, data))
}

// WriteWAV writes a 16-bit mono WAV file with the given samples.
func WriteWAV(t testing.TB, path string, sampleRate int, samples []int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing %s: %v", path, err)
	}
}

func writeFile(t testing.TB, path string, raw []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
