// Package vector writes and reads the small vector artifacts of a flood run:
// the pour-point shapefile handed to the terrain toolkit and the GeoJSON
// served to web clients.
package vector

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	goshp "github.com/jonas-p/go-shp"

	"floodfactor/internal/raster"
)

// PourPointID is the attribute value the toolkit expects on the outlet.
const PourPointID = 1

// PourPointField names the DBF column holding PourPointID.
const PourPointField = "id"

const pourPointFieldWidth = 10

// WritePourPoint writes a single-point shapefile at path (.shp, .shx, .dbf)
// with attribute id = 1 and a .prj sidecar describing crs. An unknown crs is
// written as WGS84.
func WritePourPoint(path string, p geom.Point, crs raster.CRS) error {
	w, err := goshp.Create(path, goshp.POINT)
	if err != nil {
		return fmt.Errorf("vector: create %s: %w", path, err)
	}
	w.SetFields([]goshp.Field{goshp.NumberField(PourPointField, pourPointFieldWidth)})
	row := w.Write(&goshp.Point{X: p.X, Y: p.Y})
	w.WriteAttribute(int(row), 0, PourPointID)
	w.Close()

	def := crs.Def
	if crs.IsZero() || crs.Def == raster.WGS84 {
		def = raster.WGS84WKT
	}
	if err := os.WriteFile(raster.PrjPath(path), []byte(def), 0o644); err != nil {
		return fmt.Errorf("vector: write projection: %w", err)
	}
	return nil
}

// ReadPoint returns the first point of a point shapefile and its id
// attribute. A missing or non-integer id is an error.
func ReadPoint(path string) (geom.Point, int, error) {
	r, err := goshp.Open(path)
	if err != nil {
		return geom.Point{}, 0, fmt.Errorf("vector: open %s: %w", path, err)
	}
	defer r.Close()

	field := -1
	for i, f := range r.Fields() {
		if strings.EqualFold(f.String(), PourPointField) {
			field = i
			break
		}
	}
	if field < 0 {
		return geom.Point{}, 0, fmt.Errorf("vector: %s has no %q attribute", path, PourPointField)
	}

	if !r.Next() {
		if err := r.Err(); err != nil {
			return geom.Point{}, 0, fmt.Errorf("vector: decode %s: %w", path, err)
		}
		return geom.Point{}, 0, fmt.Errorf("vector: %s has no records", path)
	}
	row, shape := r.Shape()
	pt, ok := shape.(*goshp.Point)
	if !ok {
		return geom.Point{}, 0, fmt.Errorf("vector: %s: record %d is %T, not a point", path, row, shape)
	}

	// DBF numeric fields are space padded and may carry trailing NULs.
	raw := strings.TrimSpace(strings.Trim(r.ReadAttribute(row, field), "\x00"))
	id, err := strconv.Atoi(raw)
	if err != nil {
		return geom.Point{}, 0, fmt.Errorf("vector: %s: %s attribute %q: %w", path, PourPointField, raw, err)
	}
	return geom.Point{X: pt.X, Y: pt.Y}, id, nil
}
