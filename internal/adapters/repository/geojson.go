package repository

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/okian/roadwatch/internal/domain/model"
)

// ParseGeoJSON reads a FeatureCollection of intersections. Point geometries
// use their coordinates; MultiPoint and LineString geometries use their first
// position. Features without geometry are skipped. A feature without an id
// property falls back to the feature id, then to its 1-based position.
func ParseGeoJSON(r io.Reader, opts ...Option) ([]model.PointOfInterest, error) {
	s := newSettings(opts)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrMalformedSource, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}

	points := make([]model.PointOfInterest, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		pt, err := firstPosition(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %w", ErrMalformedSource, i, err)
		}

		id, ok, err := toID(f.Properties[s.idProperty])
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %s: %w", ErrMalformedSource, i, s.idProperty, err)
		}
		if !ok {
			if id, ok, err = toID(f.ID); err != nil || !ok {
				id = int64(i + 1)
			}
		}

		points = append(points, model.PointOfInterest{
			ID:          id,
			Coordinates: [2]float64{pt.Lon(), pt.Lat()},
			Description: f.Properties.MustString(s.descProperty, ""),
		})
	}
	return points, nil
}

func firstPosition(g orb.Geometry) (orb.Point, error) {
	switch t := g.(type) {
	case orb.Point:
		return t, nil
	case orb.MultiPoint:
		if len(t) == 0 {
			return orb.Point{}, fmt.Errorf("empty %s", t.GeoJSONType())
		}
		return t[0], nil
	case orb.LineString:
		if len(t) == 0 {
			return orb.Point{}, fmt.Errorf("empty %s", t.GeoJSONType())
		}
		return t[0], nil
	default:
		return orb.Point{}, fmt.Errorf("unsupported geometry %q", g.GeoJSONType())
	}
}

// toID accepts JSON numbers and numeric strings. ok is false when v is absent.
func toID(v any) (id int64, ok bool, err error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		if t != math.Trunc(t) || math.Abs(t) > 1<<53 {
			return 0, false, fmt.Errorf("id %v is not an integer", t)
		}
		return int64(t), true, nil
	case string:
		id, err = strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("id %q is not numeric", t)
		}
		return id, true, nil
	default:
		return 0, false, fmt.Errorf("id has unsupported type %T", v)
	}
}

func parseBytes(data []byte, opts []Option) ([]model.PointOfInterest, error) {
	return ParseGeoJSON(bytes.NewReader(data), opts...)
}
