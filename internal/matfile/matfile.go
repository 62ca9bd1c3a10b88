// Package matfile reads Level 5 MAT-files, the MATLAB container format the
// Chang lab uses for electrode metadata, artifact markers and mesh geometry.
// It covers the subset those files use: numeric, char, cell and struct
// arrays, plus zlib-compressed elements. Values are stored column-major on
// disk and exposed through (row, column) accessors.
package matfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"
	"os"
	"unicode/utf16"

	"ecog2nwb/internal/errors"
)

// MAT-file data element types.
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
	miUTF8       = 16
	miUTF16      = 17
)

// ArrayClass identifies the MATLAB array class of an element.
type ArrayClass uint8

// MATLAB array classes.
const (
	ClassCell   ArrayClass = 1
	ClassStruct ArrayClass = 2
	ClassObject ArrayClass = 3
	ClassChar   ArrayClass = 4
	ClassSparse ArrayClass = 5
	ClassDouble ArrayClass = 6
	ClassSingle ArrayClass = 7
	ClassInt8   ArrayClass = 8
	ClassUint8  ArrayClass = 9
	ClassInt16  ArrayClass = 10
	ClassUint16 ArrayClass = 11
	ClassInt32  ArrayClass = 12
	ClassUint32 ArrayClass = 13
)

// Array is one MATLAB array, possibly nested for cell and struct classes.
type Array struct {
	Name   string
	Class  ArrayClass
	Dims   []int
	Values []float64         // numeric classes, column-major
	Chars  string            // char class
	Cells  []*Array          // cell class, column-major
	Fields map[string]*Array // struct class (1x1 structs in practice)
}

// Rows returns the first dimension, 0 for empty arrays.
func (a *Array) Rows() int {
	if len(a.Dims) == 0 {
		return 0
	}
	return a.Dims[0]
}

// Cols returns the second dimension, 0 for empty arrays.
func (a *Array) Cols() int {
	if len(a.Dims) < 2 {
		return 0
	}
	return a.Dims[1]
}

// At returns the numeric value at (row, col), honoring column-major layout.
func (a *Array) At(row, col int) float64 {
	return a.Values[col*a.Rows()+row]
}

// Cell returns the cell element at (row, col).
func (a *Array) Cell(row, col int) *Array {
	return a.Cells[col*a.Rows()+row]
}

// File holds the top-level arrays of one MAT-file, keyed by variable name.
type File struct {
	Arrays map[string]*Array
}

// Array returns the named top-level variable, or an error if absent.
func (f *File) Array(name string) (*Array, error) {
	a, ok := f.Arrays[name]
	if !ok {
		return nil, errors.Newf("variable %q not present in MAT-file", name).
			Component("matfile").
			Category(errors.CategoryFileParsing).
			Build()
	}
	return a, nil
}

// Open reads and parses the MAT-file at path.
func Open(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("matfile").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	f, err := Parse(raw)
	if err != nil {
		return nil, errors.Newf("parsing %s: %w", path, err).
			Component("matfile").
			Category(errors.CategoryFileParsing).
			FileContext(path, int64(len(raw))).
			Build()
	}
	return f, nil
}

// Parse decodes a Level 5 MAT-file from memory.
func Parse(raw []byte) (*File, error) {
	if len(raw) < 128 {
		return nil, errors.NewStd("file too short for a MAT-file header")
	}

	var order binary.ByteOrder
	switch string(raw[126:128]) {
	case "IM":
		order = binary.LittleEndian
	case "MI":
		order = binary.BigEndian
	default:
		return nil, errors.NewStd("missing MAT-file endian indicator")
	}

	version := order.Uint16(raw[124:126])
	if version != 0x0100 {
		return nil, errors.Newf("unsupported MAT-file version 0x%04x", version).
			Component("matfile").
			Category(errors.CategoryFileParsing).
			Build()
	}

	d := &decoder{buf: raw, pos: 128, order: order}
	file := &File{Arrays: make(map[string]*Array)}
	for !d.done() {
		arr, err := d.element()
		if err != nil {
			return nil, err
		}
		if arr != nil {
			file.Arrays[arr.Name] = arr
		}
	}
	return file, nil
}

type decoder struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

func (d *decoder) done() bool {
	return d.pos >= len(d.buf)
}

// tag reads one element tag, handling the small-element format where the
// payload shares the 8 tag bytes.
func (d *decoder) tag() (dataType uint32, payload []byte, err error) {
	if d.pos+8 > len(d.buf) {
		return 0, nil, errors.NewStd("truncated element tag")
	}
	word := d.order.Uint32(d.buf[d.pos : d.pos+4])
	if word>>16 != 0 {
		// small data element: size in the upper half, data in bytes 4..8
		size := int(word >> 16)
		if size > 4 {
			return 0, nil, errors.Newf("small element with invalid size %d", size).
				Component("matfile").
				Category(errors.CategoryFileParsing).
				Build()
		}
		payload = d.buf[d.pos+4 : d.pos+4+size]
		d.pos += 8
		return word & 0xFFFF, payload, nil
	}

	size := int(d.order.Uint32(d.buf[d.pos+4 : d.pos+8]))
	d.pos += 8
	if d.pos+size > len(d.buf) {
		return 0, nil, errors.Newf("element of %d bytes overruns file", size).
			Component("matfile").
			Category(errors.CategoryFileParsing).
			Build()
	}
	payload = d.buf[d.pos : d.pos+size]
	d.pos += size
	// elements are padded to 8-byte boundaries
	if pad := (8 - size%8) % 8; pad > 0 && d.pos+pad <= len(d.buf) {
		d.pos += pad
	}
	return word, payload, nil
}

// element reads one top-level element and returns the contained array, or
// nil for element types that carry no array data.
func (d *decoder) element() (*Array, error) {
	dataType, payload, err := d.tag()
	if err != nil {
		return nil, err
	}

	switch dataType {
	case miMATRIX:
		if len(payload) == 0 {
			// zero-byte matrix element, MATLAB's []
			return &Array{Class: ClassDouble, Dims: []int{0, 0}}, nil
		}
		return parseMatrix(payload, d.order)
	case miCOMPRESSED:
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Newf("opening compressed element: %w", err).
				Component("matfile").
				Category(errors.CategoryFileParsing).
				Build()
		}
		defer zr.Close()
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return nil, errors.Newf("inflating compressed element: %w", err).
				Component("matfile").
				Category(errors.CategoryFileParsing).
				Build()
		}
		inner := &decoder{buf: inflated, pos: 0, order: d.order}
		return inner.element()
	default:
		// skip non-matrix top-level elements
		return nil, nil
	}
}

func parseMatrix(payload []byte, order binary.ByteOrder) (*Array, error) {
	d := &decoder{buf: payload, pos: 0, order: order}

	flagsType, flags, err := d.tag()
	if err != nil {
		return nil, err
	}
	if flagsType != miUINT32 || len(flags) < 8 {
		return nil, errors.NewStd("malformed array flags element")
	}
	class := ArrayClass(flags[0])
	if order == binary.BigEndian {
		class = ArrayClass(flags[3])
	}

	dimsType, dimsRaw, err := d.tag()
	if err != nil {
		return nil, err
	}
	if dimsType != miINT32 {
		return nil, errors.NewStd("malformed dimensions element")
	}
	dims := make([]int, len(dimsRaw)/4)
	count := 1
	for i := range dims {
		dims[i] = int(int32(order.Uint32(dimsRaw[i*4 : i*4+4])))
		count *= dims[i]
	}

	_, nameRaw, err := d.tag()
	if err != nil {
		return nil, err
	}

	arr := &Array{Name: string(nameRaw), Class: class, Dims: dims}

	switch class {
	case ClassCell:
		arr.Cells = make([]*Array, 0, count)
		for i := 0; i < count; i++ {
			cell, err := d.element()
			if err != nil {
				return nil, err
			}
			arr.Cells = append(arr.Cells, cell)
		}

	case ClassStruct, ClassObject:
		if class == ClassObject {
			// class name, unused
			if _, _, err := d.tag(); err != nil {
				return nil, err
			}
		}
		_, lenRaw, err := d.tag()
		if err != nil {
			return nil, err
		}
		if len(lenRaw) < 4 {
			return nil, errors.NewStd("malformed struct field name length")
		}
		nameLen := int(int32(order.Uint32(lenRaw[:4])))
		_, namesRaw, err := d.tag()
		if err != nil {
			return nil, err
		}
		if nameLen <= 0 || len(namesRaw)%nameLen != 0 {
			return nil, errors.NewStd("malformed struct field names")
		}
		var fields []string
		for off := 0; off < len(namesRaw); off += nameLen {
			fields = append(fields, cString(namesRaw[off:off+nameLen]))
		}
		arr.Fields = make(map[string]*Array, len(fields))
		for i := 0; i < count; i++ {
			for _, field := range fields {
				val, err := d.element()
				if err != nil {
					return nil, err
				}
				arr.Fields[field] = val
			}
		}

	case ClassChar:
		charType, charRaw, err := d.tag()
		if err != nil {
			return nil, err
		}
		arr.Chars, err = decodeChars(charType, charRaw, order)
		if err != nil {
			return nil, err
		}

	case ClassDouble, ClassSingle, ClassInt8, ClassUint8,
		ClassInt16, ClassUint16, ClassInt32, ClassUint32:
		realType, realRaw, err := d.tag()
		if err != nil {
			return nil, err
		}
		arr.Values, err = decodeNumeric(realType, realRaw, order)
		if err != nil {
			return nil, err
		}
		// a trailing imaginary part element is legal but unused here

	default:
		return nil, errors.Newf("unsupported MATLAB array class %d", class).
			Component("matfile").
			Category(errors.CategoryFileParsing).
			Build()
	}

	return arr, nil
}

func decodeNumeric(dataType uint32, raw []byte, order binary.ByteOrder) ([]float64, error) {
	width, ok := numericWidth(dataType)
	if !ok {
		return nil, errors.Newf("unsupported numeric element type %d", dataType).
			Component("matfile").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if len(raw)%width != 0 {
		return nil, errors.Newf("numeric element size %d not a multiple of %d", len(raw), width).
			Component("matfile").
			Category(errors.CategoryFileParsing).
			Build()
	}
	n := len(raw) / width
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		chunk := raw[i*width : (i+1)*width]
		switch dataType {
		case miINT8:
			out[i] = float64(int8(chunk[0]))
		case miUINT8:
			out[i] = float64(chunk[0])
		case miINT16:
			out[i] = float64(int16(order.Uint16(chunk)))
		case miUINT16:
			out[i] = float64(order.Uint16(chunk))
		case miINT32:
			out[i] = float64(int32(order.Uint32(chunk)))
		case miUINT32:
			out[i] = float64(order.Uint32(chunk))
		case miINT64:
			out[i] = float64(int64(order.Uint64(chunk)))
		case miUINT64:
			out[i] = float64(order.Uint64(chunk))
		case miSINGLE:
			out[i] = float64(math.Float32frombits(order.Uint32(chunk)))
		case miDOUBLE:
			out[i] = math.Float64frombits(order.Uint64(chunk))
		}
	}
	return out, nil
}

func numericWidth(dataType uint32) (int, bool) {
	switch dataType {
	case miINT8, miUINT8:
		return 1, true
	case miINT16, miUINT16:
		return 2, true
	case miINT32, miUINT32, miSINGLE:
		return 4, true
	case miINT64, miUINT64, miDOUBLE:
		return 8, true
	}
	return 0, false
}

func decodeChars(dataType uint32, raw []byte, order binary.ByteOrder) (string, error) {
	switch dataType {
	case miUINT8, miUTF8:
		return string(raw), nil
	case miUINT16, miUTF16:
		if len(raw)%2 != 0 {
			return "", errors.NewStd("odd-length UTF-16 char data")
		}
		units := make([]uint16, len(raw)/2)
		for i := range units {
			units[i] = order.Uint16(raw[i*2 : i*2+2])
		}
		return string(utf16.Decode(units)), nil
	default:
		return "", errors.Newf("unsupported char element type %d", dataType).
			Component("matfile").
			Category(errors.CategoryFileParsing).
			Build()
	}
}

func cString(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw)
}
