package volume

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi" // register qoi
	goutils "go.viam.com/utils"
)

// rawMagic starts every raw volume file ("SIFT3DV1" little-endian).
const rawMagic = uint64(0x3156443354464953)

const maxRawDim = 1 << 16

var sliceExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".ppm":  true,
	".qoi":  true,
}

// LoadSlices builds a single-channel volume from a directory of 2D images sorted by file name.
// Each slice becomes one z plane with intensities scaled to [0, 1].
func LoadSlices(dir string) (*Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !sliceExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, errors.Errorf("no image slices found in %q", dir)
	}
	sort.Strings(names)

	var vol *Volume
	for z, name := range names {
		img, err := imaging.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read slice %q", name)
		}
		gray := imaging.Grayscale(img)
		bounds := gray.Bounds()
		if vol == nil {
			vol = New(bounds.Dx(), bounds.Dy(), len(names), 1)
		}
		if bounds.Dx() != vol.nx || bounds.Dy() != vol.ny {
			return nil, errors.Errorf("slice %q is %dx%d, expected %dx%d", name, bounds.Dx(), bounds.Dy(), vol.nx, vol.ny)
		}
		fillSlice(vol, gray, z)
	}
	return vol, nil
}

func fillSlice(vol *Volume, gray *image.NRGBA, z int) {
	bounds := gray.Bounds()
	for y := 0; y < vol.ny; y++ {
		for x := 0; x < vol.nx; x++ {
			// grayscale images carry the same value in every color channel
			off := gray.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			vol.Set(x, y, z, float64(gray.Pix[off])/255.)
		}
	}
}

// ReadRaw reads a volume written by WriteRaw. Files ending in .gz are decompressed.
func ReadRaw(fn string) (*Volume, error) {
	f, err := os.Open(fn) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)

	var r io.Reader = f
	if filepath.Ext(fn) == ".gz" {
		gin, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer goutils.UncheckedErrorFunc(gin.Close)
		r = gin
	}
	return ReadVolume(bufio.NewReader(r))
}

// ReadVolume decodes a raw volume: a magic number, four uint64 dimensions (nx, ny, nz, nc), then
// little-endian float32 values in storage order.
func ReadVolume(r io.Reader) (*Volume, error) {
	var header [5]uint64
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, errors.Wrap(err, "cannot read volume header")
	}
	if header[0] != rawMagic {
		return nil, errors.New("not a raw volume file")
	}
	for _, d := range header[1:] {
		if d == 0 || d > maxRawDim {
			return nil, errors.Errorf("bad volume dimensions %v", header[1:])
		}
	}
	vol := New(int(header[1]), int(header[2]), int(header[3]), int(header[4]))
	buf := make([]float32, len(vol.data))
	if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
		return nil, errors.Wrap(err, "cannot read volume data")
	}
	for i, f := range buf {
		vol.data[i] = float64(f)
	}
	return vol, nil
}

// WriteRaw writes the volume to a file, gzip-compressed if the name ends in .gz.
func (v *Volume) WriteRaw(fn string) error {
	f, err := os.Create(fn) //nolint:gosec
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(f.Close)

	var gout *gzip.Writer
	var out io.Writer = f
	if filepath.Ext(fn) == ".gz" {
		gout = gzip.NewWriter(f)
		out = gout
	}

	if err := v.Encode(out); err != nil {
		return err
	}
	if gout != nil {
		if err := gout.Close(); err != nil {
			return err
		}
	}
	return f.Sync()
}

// Encode encodes the volume in the format read by ReadVolume.
func (v *Volume) Encode(out io.Writer) error {
	header := [5]uint64{rawMagic, uint64(v.nx), uint64(v.ny), uint64(v.nz), uint64(v.nc)}
	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return err
	}
	buf := make([]float32, len(v.data))
	for i, d := range v.data {
		if math.Abs(d) > math.MaxFloat32 {
			return errors.Errorf("value %v does not fit in a float32", d)
		}
		buf[i] = float32(d)
	}
	return binary.Write(out, binary.LittleEndian, buf)
}
