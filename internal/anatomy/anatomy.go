// Package anatomy loads per-subject electrode metadata from the lab's
// TDT_elecs_all.mat file and derives the device grouping used to build the
// electrode table.
package anatomy

import (
	"math"
	"strings"
	"unicode"

	"ecog2nwb/internal/errors"
	"ecog2nwb/internal/matfile"
)

// Short labels excluded from the LFP electrode set. EKG rows are routed to
// the separate EKG channel path, RT and NaN rows are dropped entirely.
var excludedLabels = map[string]bool{
	"RT":  true,
	"EKG": true,
	"NaN": true,
}

// Device names that are anatomy-label artifacts rather than real hardware.
var sentinelDevices = map[string]bool{
	"NaN":   true,
	"Right": true,
	"EKG":   true,
}

// Electrode is one row of the anatomy table, with its aligned coordinate.
type Electrode struct {
	Index      int // position in the anatomy file, stable across filtering
	ShortLabel string
	LongLabel  string
	Type       string
	Location   string
	Device     string
	X, Y, Z    float64
}

// Metadata holds the ordered electrode records of one subject.
type Metadata struct {
	Electrodes []Electrode
}

// Load reads electrode metadata from the MAT-file at path. The anatomy
// variable is an Nx4 cell array of char arrays (short label, long label,
// type, anatomical location); elecmatrix is the coordinate matrix.
func Load(path string) (*Metadata, error) {
	f, err := matfile.Open(path)
	if err != nil {
		return nil, err
	}

	anat, err := f.Array("anatomy")
	if err != nil {
		return nil, err
	}
	if anat.Class != matfile.ClassCell || anat.Cols() < 4 {
		return nil, errors.Newf("anatomy variable in %s is not an Nx4 cell array", path).
			Component("anatomy").
			Category(errors.CategoryFileParsing).
			Build()
	}

	elecmatrix, err := f.Array("elecmatrix")
	if err != nil {
		return nil, err
	}
	if elecmatrix.Class != matfile.ClassDouble || (elecmatrix.Rows() > 0 && elecmatrix.Cols() != 3) {
		return nil, errors.Newf("elecmatrix variable in %s is not an Nx3 matrix", path).
			Component("anatomy").
			Category(errors.CategoryFileParsing).
			Build()
	}

	n := anat.Rows()
	longLabels := make([]string, n)
	for i := 0; i < n; i++ {
		longLabels[i] = cellText(anat, i, 1)
	}
	devices := DeriveDeviceNames(longLabels)
	coords := AlignCoordinates(n, elecmatrix)

	md := &Metadata{Electrodes: make([]Electrode, 0, n)}
	for i := 0; i < n; i++ {
		md.Electrodes = append(md.Electrodes, Electrode{
			Index:      i,
			ShortLabel: cellText(anat, i, 0),
			LongLabel:  longLabels[i],
			Type:       cellText(anat, i, 2),
			Location:   cellText(anat, i, 3),
			Device:     devices[i],
			X:          coords[i][0],
			Y:          coords[i][1],
			Z:          coords[i][2],
		})
	}
	return md, nil
}

func cellText(arr *matfile.Array, row, col int) string {
	c := arr.Cell(row, col)
	if c == nil {
		return ""
	}
	return c.Chars
}

// DeriveDeviceNames maps long electrode labels to device names. When the
// first label carries an "Electrode" suffix the suffix is stripped,
// otherwise all digits are removed from each label.
func DeriveDeviceNames(longLabels []string) []string {
	out := make([]string, len(longLabels))
	if len(longLabels) == 0 {
		return out
	}

	if strings.Contains(longLabels[0], "Electrode") {
		for i, label := range longLabels {
			if idx := strings.Index(label, "Electrode"); idx >= 0 {
				out[i] = label[:idx]
			} else {
				out[i] = label
			}
		}
		return out
	}

	for i, label := range longLabels {
		out[i] = strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return -1
			}
			return r
		}, label)
	}
	return out
}

// AlignCoordinates returns n coordinate triples from elecmatrix, truncating
// extra rows and padding missing ones with NaN triples, order preserved.
func AlignCoordinates(n int, elecmatrix *matfile.Array) [][3]float64 {
	out := make([][3]float64, n)
	rows := elecmatrix.Rows()
	for i := 0; i < n; i++ {
		if i < rows {
			out[i] = [3]float64{elecmatrix.At(i, 0), elecmatrix.At(i, 1), elecmatrix.At(i, 2)}
		} else {
			out[i] = [3]float64{math.NaN(), math.NaN(), math.NaN()}
		}
	}
	return out
}

// LFP returns the electrodes included in the primary LFP set, in file order.
func (md *Metadata) LFP() []Electrode {
	var out []Electrode
	for _, e := range md.Electrodes {
		if !excludedLabels[e.ShortLabel] {
			out = append(out, e)
		}
	}
	return out
}

// EKG returns the electrodes routed to the EKG channel path.
func (md *Metadata) EKG() []Electrode {
	var out []Electrode
	for _, e := range md.Electrodes {
		if e.ShortLabel == "EKG" {
			out = append(out, e)
		}
	}
	return out
}

// Devices returns the ordered deduplicated device names of the LFP set,
// with sentinel pseudo-devices removed. The result is stable: running it
// twice over the same metadata yields the same list.
func (md *Metadata) Devices() []string {
	var names []string
	for _, e := range md.LFP() {
		names = append(names, e.Device)
	}
	var out []string
	for _, name := range RemoveDuplicates(names) {
		if !sentinelDevices[name] {
			out = append(out, name)
		}
	}
	return out
}

// ByDevice returns the LFP electrodes belonging to the named device.
func (md *Metadata) ByDevice(device string) []Electrode {
	var out []Electrode
	for _, e := range md.LFP() {
		if e.Device == device {
			out = append(out, e)
		}
	}
	return out
}

// RemoveDuplicates returns the unique values of in, first occurrence order.
func RemoveDuplicates(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
