package sift3d

import (
	"compress/gzip"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sift3d/spatialmath"
)

// ErrMalformedMatrix is returned when an interchange matrix has the wrong shape.
var ErrMalformedMatrix = spatialmath.ErrMalformedMatrix

// orientedCols is the width of an oriented keypoint row: x, y, z, scale and 9 rotation entries.
const orientedCols = 4 + 9

// KeypointsToMat returns one [x y z] row per keypoint in voxel units of the input volume.
func KeypointsToMat(kps *KeypointStore) (*mat.Dense, error) {
	if kps.Len() == 0 {
		return nil, errors.New("no keypoints to convert")
	}
	m := mat.NewDense(kps.Len(), 3, nil)
	for i := range kps.Keypoints {
		x, y, z := kps.Keypoints[i].BaseCoords()
		m.SetRow(i, []float64{x, y, z})
	}
	return m, nil
}

// KeypointsToOrientedMat returns one [x y z s R00 R01 ... R22] row per keypoint. Coordinates are
// the refined ones in the keypoint's octave; s is the absolute scale.
func KeypointsToOrientedMat(kps *KeypointStore) (*mat.Dense, error) {
	if kps.Len() == 0 {
		return nil, errors.New("no keypoints to convert")
	}
	m := mat.NewDense(kps.Len(), orientedCols, nil)
	row := make([]float64, orientedCols)
	for i := range kps.Keypoints {
		kp := &kps.Keypoints[i]
		row[0], row[1], row[2], row[3] = kp.Xd, kp.Yd, kp.Zd, kp.Sd
		copy(row[4:], kp.R.Flat())
		m.SetRow(i, row)
	}
	return m, nil
}

// DescriptorsToMat returns one [x y z f0 ... fD-1] row per descriptor.
func DescriptorsToMat(ds *DescriptorStore) (*mat.Dense, error) {
	if ds.Len() == 0 {
		return nil, errors.New("no descriptors to convert")
	}
	numFeatures := ds.NumFeatures()
	m := mat.NewDense(ds.Len(), 3+numFeatures, nil)
	row := make([]float64, 3+numFeatures)
	for i := range ds.Descriptors {
		d := &ds.Descriptors[i]
		if len(d.Features) != numFeatures {
			return nil, errors.Errorf("descriptor %d has %d features, expected %d", i, len(d.Features), numFeatures)
		}
		row[0], row[1], row[2] = d.X, d.Y, d.Z
		copy(row[3:], d.Features)
		m.SetRow(i, row)
	}
	return m, nil
}

// MatToDescriptors parses a descriptor matrix produced by DescriptorsToMat. The extent of the
// store is taken from nx, ny, nz. Scales are not part of the matrix and are left at zero.
func MatToDescriptors(m mat.Matrix, histNumel, nx, ny, nz int) (*DescriptorStore, error) {
	if histNumel <= 0 {
		return nil, errors.Errorf("invalid histogram length %d", histNumel)
	}
	rows, cols := m.Dims()
	numFeatures := NumHists * histNumel
	if cols != 3+numFeatures {
		return nil, errors.Wrapf(ErrMalformedMatrix, "descriptor matrix has %d columns, expected %d", cols, 3+numFeatures)
	}
	store := &DescriptorStore{
		Descriptors: make([]Descriptor, rows),
		Nx:          nx,
		Ny:          ny,
		Nz:          nz,
		HistNumel:   histNumel,
	}
	for i := 0; i < rows; i++ {
		d := &store.Descriptors[i]
		d.X, d.Y, d.Z = m.At(i, 0), m.At(i, 1), m.At(i, 2)
		d.Features = make([]float64, numFeatures)
		for j := range d.Features {
			d.Features[j] = m.At(i, 3+j)
		}
	}
	return store, nil
}

func isGzipPath(fn string) bool {
	return strings.HasSuffix(strings.ToLower(fn), ".gz")
}

// WriteMatCSV writes the matrix as comma separated rows, gzip compressed when fn ends in .gz.
func WriteMatCSV(fn string, m mat.Matrix) (err error) {
	//nolint:gosec
	f, err := os.Create(filepath.Clean(fn))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	var out io.Writer = f
	if isGzipPath(fn) {
		gz := gzip.NewWriter(f)
		defer func() {
			err = multierr.Combine(err, gz.Close())
		}()
		out = gz
	}
	return EncodeMatCSV(out, m)
}

// EncodeMatCSV writes the matrix as comma separated rows.
func EncodeMatCSV(out io.Writer, m mat.Matrix) error {
	rows, cols := m.Dims()
	w := csv.NewWriter(out)
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadMatCSV reads a matrix written by WriteMatCSV.
func ReadMatCSV(fn string) (*mat.Dense, error) {
	//nolint:gosec
	f, err := os.Open(filepath.Clean(fn))
	if err != nil {
		return nil, err
	}
	defer func() {
		//nolint:errcheck
		f.Close()
	}()

	var in io.Reader = f
	if isGzipPath(fn) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer func() {
			//nolint:errcheck
			gz.Close()
		}()
		in = gz
	}
	return DecodeMatCSV(in)
}

// DecodeMatCSV parses comma separated rows of equal length into a matrix.
func DecodeMatCSV(in io.Reader) (*mat.Dense, error) {
	records, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return nil, errors.Wrap(ErrMalformedMatrix, err.Error())
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, errors.Wrap(ErrMalformedMatrix, "empty matrix")
	}
	cols := len(records[0])
	data := make([]float64, 0, len(records)*cols)
	for i, record := range records {
		if len(record) != cols {
			return nil, errors.Wrapf(ErrMalformedMatrix, "row %d has %d columns, expected %d", i, len(record), cols)
		}
		for _, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.Wrapf(ErrMalformedMatrix, "row %d: %v", i, err)
			}
			data = append(data, v)
		}
	}
	return mat.NewDense(len(records), cols, data), nil
}
