package raster

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ESRI ASCII grids are the exchange format with the terrain toolkit and the
// DEM provider. A grid file may have a .prj sidecar carrying its CRS as WKT.

const scanBufferSize = 1 << 20

// ReadASCIIGrid loads an entire .asc file. Cells equal to the header's
// NODATA_value become NaN. When the file has no .prj sidecar the grid's CRS
// is left unknown.
func ReadASCIIGrid(path string) (*Grid, error) {
	f, err := OpenASCIIGrid(path)
	if err != nil {
		return nil, err
	}
	m := f.Meta()
	return f.ReadWindow(Window{Width: m.Cols, Height: m.Rows})
}

// ASCIIGridFile is a lazily-read .asc raster. Only the header is parsed on
// open; ReadWindow streams the file up to the end of the requested window.
type ASCIIGridFile struct {
	path string
	meta Meta
}

var _ WindowReader = (*ASCIIGridFile)(nil)

// OpenASCIIGrid parses the header and .prj sidecar of path.
func OpenASCIIGrid(path string) (*ASCIIGridFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raster: open %s: %w", path, err)
	}
	defer f.Close()

	sc := newWordScanner(f)
	meta, _, err := readASCIIHeader(sc)
	if err != nil {
		return nil, fmt.Errorf("raster: %s: %w", path, err)
	}
	crs, err := readPrj(path)
	if err != nil {
		return nil, err
	}
	meta.CRS = crs
	return &ASCIIGridFile{path: path, meta: meta}, nil
}

// Path returns the file backing the grid.
func (a *ASCIIGridFile) Path() string { return a.path }

// Meta implements WindowReader.
func (a *ASCIIGridFile) Meta() Meta { return a.meta }

// WithCRS overrides the CRS reported for the file.
func (a *ASCIIGridFile) WithCRS(crs CRS) *ASCIIGridFile {
	c := *a
	c.meta.CRS = crs
	return &c
}

// ReadWindow implements WindowReader. The format has no row index, so every
// token up to the window's last cell is scanned; only cells inside the window
// are converted, and the file is not read past that cell.
func (a *ASCIIGridFile) ReadWindow(w Window) (*Grid, error) {
	if err := checkWindow(a.meta, w); err != nil {
		return nil, err
	}
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("raster: open %s: %w", a.path, err)
	}
	defer f.Close()

	sc := newWordScanner(f)
	_, first, err := readASCIIHeader(sc)
	if err != nil {
		return nil, fmt.Errorf("raster: %s: %w", a.path, err)
	}

	out := New(w.Height, w.Width, a.meta.Transform.Offset(w.ColOff, w.RowOff), a.meta.CRS)
	out.NoData = a.meta.NoData

	last := (w.RowOff+w.Height-1)*a.meta.Cols + w.ColOff + w.Width - 1
	tok := first
	for i := 0; i <= last; i++ {
		if i > 0 {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return nil, fmt.Errorf("raster: %s: %w", a.path, err)
				}
				return nil, fmt.Errorf("raster: %s: truncated after %d values", a.path, i)
			}
			tok = sc.Text()
		}
		r, c := i/a.meta.Cols, i%a.meta.Cols
		if r < w.RowOff || c < w.ColOff || c >= w.ColOff+w.Width {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("raster: %s: value %d: %w", a.path, i, err)
		}
		if v == a.meta.NoData {
			v = math.NaN()
		}
		out.Set(r-w.RowOff, c-w.ColOff, v)
	}
	return out, nil
}

func newWordScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), scanBufferSize)
	sc.Split(bufio.ScanWords)
	return sc
}

// readASCIIHeader consumes header key/value pairs and returns the first data
// token, which has already been read from sc.
func readASCIIHeader(sc *bufio.Scanner) (Meta, string, error) {
	vals := make(map[string]float64)
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		switch key {
		case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter",
			"cellsize", "dx", "dy", "nodata_value":
		default:
			first = sc.Text()
		}
		if first != "" {
			break
		}
		if !sc.Scan() {
			return Meta{}, "", fmt.Errorf("header key %q has no value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return Meta{}, "", fmt.Errorf("header %s: %w", key, err)
		}
		vals[key] = v
	}
	if err := sc.Err(); err != nil {
		return Meta{}, "", err
	}
	if first == "" {
		return Meta{}, "", fmt.Errorf("no cell values")
	}

	ncols, okC := vals["ncols"]
	nrows, okR := vals["nrows"]
	if !okC || !okR || ncols < 1 || nrows < 1 {
		return Meta{}, "", fmt.Errorf("header must declare positive ncols and nrows")
	}
	dx, dy := vals["cellsize"], vals["cellsize"]
	if v, ok := vals["dx"]; ok {
		dx = v
	}
	if v, ok := vals["dy"]; ok {
		dy = v
	}
	if dx <= 0 || dy <= 0 {
		return Meta{}, "", fmt.Errorf("header must declare a positive cellsize")
	}

	var x0, yll float64
	switch {
	case hasKey(vals, "xllcorner"):
		x0 = vals["xllcorner"]
	case hasKey(vals, "xllcenter"):
		x0 = vals["xllcenter"] - dx/2
	default:
		return Meta{}, "", fmt.Errorf("header must declare xllcorner or xllcenter")
	}
	switch {
	case hasKey(vals, "yllcorner"):
		yll = vals["yllcorner"]
	case hasKey(vals, "yllcenter"):
		yll = vals["yllcenter"] - dy/2
	default:
		return Meta{}, "", fmt.Errorf("header must declare yllcorner or yllcenter")
	}

	nodata := DefaultNoData
	if v, ok := vals["nodata_value"]; ok {
		nodata = v
	}
	rows, cols := int(nrows), int(ncols)
	return Meta{
		Rows:      rows,
		Cols:      cols,
		NoData:    nodata,
		Transform: Transform{X0: x0, DX: dx, Y0: yll + float64(rows)*dy, DY: -dy},
	}, first, nil
}

func hasKey(m map[string]float64, k string) bool {
	_, ok := m[k]
	return ok
}

// WriteASCIIGrid writes g as an ESRI ASCII grid, plus a .prj sidecar when the
// grid has a CRS. NaN cells are written as the grid's NoData sentinel.
func WriteASCIIGrid(path string, g *Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if !g.Transform.IsNorthUp() || g.Transform.DY >= 0 {
		return invalidGrid("ASCII grids require a north-up transform")
	}
	nodata := g.NoData
	if math.IsNaN(nodata) {
		nodata = DefaultNoData
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("raster: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)

	dx, dy := g.Transform.DX, -g.Transform.DY
	fmt.Fprintf(w, "ncols %d\nnrows %d\n", g.Cols, g.Rows)
	fmt.Fprintf(w, "xllcorner %s\nyllcorner %s\n", fmtFloat(g.Transform.X0), fmtFloat(g.Transform.Y0-float64(g.Rows)*dy))
	if dx == dy {
		fmt.Fprintf(w, "cellsize %s\n", fmtFloat(dx))
	} else {
		fmt.Fprintf(w, "dx %s\ndy %s\n", fmtFloat(dx), fmtFloat(dy))
	}
	fmt.Fprintf(w, "NODATA_value %s\n", fmtFloat(nodata))
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			if c > 0 {
				w.WriteByte(' ')
			}
			v := g.At(r, c)
			if math.IsNaN(v) {
				v = nodata
			}
			w.WriteString(fmtFloat(v))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("raster: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("raster: close %s: %w", path, err)
	}
	return writePrj(path, g.CRS)
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// PrjPath returns the sidecar path for a raster or shapefile.
func PrjPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
}

func readPrj(path string) (CRS, error) {
	b, err := os.ReadFile(PrjPath(path))
	if os.IsNotExist(err) {
		return CRS{}, nil
	}
	if err != nil {
		return CRS{}, fmt.Errorf("raster: read projection: %w", err)
	}
	return CRS{Def: strings.TrimSpace(string(b))}, nil
}

func writePrj(path string, crs CRS) error {
	if crs.IsZero() {
		return nil
	}
	if err := os.WriteFile(PrjPath(path), []byte(crs.Def), 0o644); err != nil {
		return fmt.Errorf("raster: write projection: %w", err)
	}
	return nil
}
