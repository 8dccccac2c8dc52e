package sentinel

import (
	"encoding/json"
	"fmt"
	"os"
)

// Bounds is the bounding box of the area of interest in degrees
type Bounds struct {
	MinLon float64
	MaxLon float64
	MinLat float64
	MaxLat float64
}

type geoJSON struct {
	Features []struct {
		Geometry struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// LoadBounds extracts the bounding box from a GeoJSON area-of-interest
// file. Polygon and MultiPolygon geometries use their outer ring.
func LoadBounds(path string) (Bounds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bounds{}, fmt.Errorf("failed to read GeoJSON: %w", err)
	}

	var gj geoJSON
	if err := json.Unmarshal(data, &gj); err != nil {
		return Bounds{}, fmt.Errorf("failed to parse GeoJSON %s: %w", path, err)
	}
	if len(gj.Features) == 0 {
		return Bounds{}, fmt.Errorf("GeoJSON %s has no features", path)
	}

	geom := gj.Features[0].Geometry

	// Positions may carry an altitude element, so slices rather than
	// fixed-size arrays
	var coords [][]float64

	switch geom.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(geom.Coordinates, &rings); err != nil {
			return Bounds{}, fmt.Errorf("failed to parse polygon coordinates: %w", err)
		}
		if len(rings) == 0 {
			return Bounds{}, fmt.Errorf("polygon in %s has no rings", path)
		}
		coords = rings[0]
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(geom.Coordinates, &polys); err != nil {
			return Bounds{}, fmt.Errorf("failed to parse multipolygon coordinates: %w", err)
		}
		if len(polys) == 0 || len(polys[0]) == 0 {
			return Bounds{}, fmt.Errorf("multipolygon in %s has no rings", path)
		}
		coords = polys[0][0]
	default:
		return Bounds{}, fmt.Errorf("unsupported geometry type %q in %s", geom.Type, path)
	}

	if len(coords) == 0 || len(coords[0]) < 2 {
		return Bounds{}, fmt.Errorf("geometry in %s has no coordinates", path)
	}

	b := Bounds{
		MinLon: coords[0][0], MaxLon: coords[0][0],
		MinLat: coords[0][1], MaxLat: coords[0][1],
	}
	for _, c := range coords[1:] {
		if len(c) < 2 {
			continue
		}
		if c[0] < b.MinLon {
			b.MinLon = c[0]
		}
		if c[0] > b.MaxLon {
			b.MaxLon = c[0]
		}
		if c[1] < b.MinLat {
			b.MinLat = c[1]
		}
		if c[1] > b.MaxLat {
			b.MaxLat = c[1]
		}
	}
	return b, nil
}
