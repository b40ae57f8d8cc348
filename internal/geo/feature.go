package geo

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/transport/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// PathFeature renders the sampled runs of one transport path as a
// GeoJSON feature tagged with the transport entry and name.
func PathFeature(entry uint32, name string, runs [][]core.Position) (geom.GeoJSONFeature, error) {
	ml, err := MultiPolyline(runs)
	if err != nil {
		return geom.GeoJSONFeature{}, fmt.Errorf("transport %d: %w", entry, err)
	}
	return geom.GeoJSONFeature{
		Geometry: ml.AsGeometry(),
		ID:       entry,
		Properties: map[string]interface{}{
			"entry": entry,
			"name":  name,
			"runs":  ml.NumLineStrings(),
		},
	}, nil
}

// FeatureCollection renders features as a GeoJSON FeatureCollection.
func FeatureCollection(features []geom.GeoJSONFeature) ([]byte, error) {
	b, err := json.Marshal(geom.GeoJSONFeatureCollection(features))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feature collection: %w", err)
	}
	return b, nil
}
