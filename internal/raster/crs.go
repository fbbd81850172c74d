package raster

import (
	"fmt"
	"strings"

	"github.com/ctessum/geom/proj"
)

// WGS84 is the PROJ.4 definition used when a raster carries no CRS of its own.
const WGS84 = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"

// WGS84WKT is the ESRI-flavoured WKT written next to shapefiles and grids.
const WGS84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// crsULP is the tolerance, in units in the last place, for comparing
// projection parameters.
const crsULP = 3

// CRS is a coordinate reference system given as WKT or a PROJ.4 string.
// The zero value means "unknown".
type CRS struct {
	Def string `json:"def,omitempty"`
}

// IsZero reports whether no definition is attached.
func (c CRS) IsZero() bool {
	return strings.TrimSpace(c.Def) == ""
}

// SR parses the definition.
func (c CRS) SR() (*proj.SR, error) {
	if c.IsZero() {
		return nil, fmt.Errorf("raster: empty CRS definition")
	}
	sr, err := proj.Parse(strings.TrimSpace(c.Def))
	if err != nil {
		return nil, fmt.Errorf("raster: parse CRS: %w", err)
	}
	return sr, nil
}

// Equal reports whether c and o describe the same reference system.
// Identical definitions compare equal without parsing; otherwise both are
// parsed and compared parameter by parameter.
func (c CRS) Equal(o CRS) (bool, error) {
	a, b := strings.TrimSpace(c.Def), strings.TrimSpace(o.Def)
	if a == b {
		return true, nil
	}
	if a == "" || b == "" {
		return false, nil
	}
	srA, err := c.SR()
	if err != nil {
		return false, err
	}
	srB, err := o.SR()
	if err != nil {
		return false, err
	}
	return equalSR(srA, srB)
}

// equalSR guards proj.SR.Equal, which panics when the two definitions carry
// datum parameter lists of different lengths.
func equalSR(a, b *proj.SR) (eq bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			eq, err = false, fmt.Errorf("raster: compare CRS: %v", r)
		}
	}()
	return a.Equal(b, crsULP), nil
}

// OrDefault returns c, or def when c is unknown.
func (c CRS) OrDefault(def CRS) CRS {
	if c.IsZero() {
		return def
	}
	return c
}
