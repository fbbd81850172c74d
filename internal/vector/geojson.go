package vector

import (
	"encoding/json"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"

	"floodfactor/internal/raster"
)

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection returns an empty collection.
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: []*Feature{}}
}

// Add appends g with the given properties.
func (fc *FeatureCollection) Add(g geom.Geom, props map[string]any) error {
	gj, err := geojson.ToGeoJSON(g)
	if err != nil {
		return err
	}
	if props == nil {
		props = map[string]any{}
	}
	fc.Features = append(fc.Features, &Feature{Type: "Feature", Geometry: gj, Properties: props})
	return nil
}

// Marshal encodes the collection.
func (fc *FeatureCollection) Marshal() ([]byte, error) {
	return json.Marshal(fc)
}

// FloodExtent converts the inundated cells of depth into polygons. Adjacent
// flooded cells on the same row are merged into one rectangle carrying the
// mean and maximum depth of its own cells. The pour point, when given, is
// added as a point feature.
func FloodExtent(depth *raster.Grid, pourPoint *geom.Point) (*FeatureCollection, error) {
	fc := NewFeatureCollection()
	if pourPoint != nil {
		if err := fc.Add(*pourPoint, map[string]any{"kind": "pour_point", "id": PourPointID}); err != nil {
			return nil, err
		}
	}

	t := depth.Transform
	for r := 0; r < depth.Rows; r++ {
		c := 0
		for c < depth.Cols {
			if !flooded(depth.At(r, c)) {
				c++
				continue
			}
			start := c
			var sum, deepest float64
			for c < depth.Cols && flooded(depth.At(r, c)) {
				d := depth.At(r, c)
				sum += d
				deepest = math.Max(deepest, d)
				c++
			}
			ring := []geom.Point{
				t.Apply(float64(start), float64(r)),
				t.Apply(float64(c), float64(r)),
				t.Apply(float64(c), float64(r+1)),
				t.Apply(float64(start), float64(r+1)),
				t.Apply(float64(start), float64(r)),
			}
			props := map[string]any{
				"kind":         "inundation",
				"row":          r,
				"cells":        c - start,
				"mean_depth_m": sum / float64(c-start),
				"max_depth_m":  deepest,
			}
			if err := fc.Add(geom.Polygon{ring}, props); err != nil {
				return nil, err
			}
		}
	}
	return fc, nil
}

func flooded(d float64) bool {
	return d > 0 && !math.IsNaN(d)
}
