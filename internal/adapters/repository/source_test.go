package repository_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/roadwatch/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

const intersections = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "MultiPoint", "coordinates": [[-79.3957, 43.6629], [-79.3958, 43.6630]]},
     "properties": {"INTERSECTION_ID": 13467722, "INTERSECTION_DESC": "Bloor St W / St George St"}},
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [-79.4000, 43.6700]},
     "properties": {"INTERSECTION_ID": "13467999", "INTERSECTION_DESC": "Spadina Ave / Bloor St W"}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[-79.41, 43.68], [-79.42, 43.69]]},
     "properties": {"INTERSECTION_DESC": "unnamed"}},
    {"type": "Feature", "geometry": null, "properties": {"INTERSECTION_ID": 1}}
  ]
}`

func TestParseGeoJSON(t *testing.T) {
	Convey("Given a feature collection of intersections", t, func() {
		points, err := repository.ParseGeoJSON(strings.NewReader(intersections))

		Convey("Then every feature with geometry becomes a point", func() {
			So(err, ShouldBeNil)
			So(points, ShouldHaveLength, 3)
		})

		Convey("And MultiPoint uses its first position", func() {
			So(points[0].ID, ShouldEqual, int64(13467722))
			So(points[0].Coordinates, ShouldResemble, [2]float64{-79.3957, 43.6629})
			So(points[0].Description, ShouldEqual, "Bloor St W / St George St")
		})

		Convey("And numeric-string ids are accepted", func() {
			So(points[1].ID, ShouldEqual, int64(13467999))
			So(points[1].Coordinates, ShouldResemble, [2]float64{-79.4, 43.67})
		})

		Convey("And a missing id falls back to the feature position", func() {
			So(points[2].ID, ShouldEqual, int64(3))
			So(points[2].Coordinates, ShouldResemble, [2]float64{-79.41, 43.68})
		})
	})

	Convey("Given custom property names", t, func() {
		doc := `{"type":"FeatureCollection","features":[
		  {"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"pid":7,"name":"x"}}]}`
		points, err := repository.ParseGeoJSON(strings.NewReader(doc),
			repository.WithIDProperty("pid"), repository.WithDescriptionProperty("name"))

		So(err, ShouldBeNil)
		So(points, ShouldHaveLength, 1)
		So(points[0].ID, ShouldEqual, int64(7))
		So(points[0].Description, ShouldEqual, "x")
	})

	Convey("Given a feature carrying only a top-level id", t, func() {
		doc := `{"type":"FeatureCollection","features":[
		  {"type":"Feature","id":42,"geometry":{"type":"Point","coordinates":[-79.3957,43.6629]},"properties":null}]}`
		points, err := repository.ParseGeoJSON(strings.NewReader(doc))

		So(err, ShouldBeNil)
		So(points, ShouldHaveLength, 1)
		So(points[0].ID, ShouldEqual, int64(42))
		So(points[0].Description, ShouldBeEmpty)
	})

	Convey("Given malformed documents", t, func() {
		cases := []struct{ name, doc string }{
			{"not json", `{"type":`},
			{"wrong type", `{"type":"Feature"}`},
			{"bad geometry", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Polygon","coordinates":[]}}]}`},
			{"unknown geometry", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Circle","coordinates":[1,2]}}]}`},
			{"untyped feature", `{"type":"FeatureCollection","features":[{"geometry":{"type":"Point","coordinates":[1,2]}}]}`},
			{"string coordinates", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":["a","b"]}}]}`},
			{"empty multipoint", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"MultiPoint","coordinates":[]}}]}`},
			{"bad id", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"INTERSECTION_ID":"abc"}}]}`},
			{"fractional id", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"INTERSECTION_ID":1.5}}]}`},
		}
		for _, tc := range cases {
			Convey("Then "+tc.name+" is rejected", func() {
				_, err := repository.ParseGeoJSON(strings.NewReader(tc.doc))
				So(errors.Is(err, repository.ErrMalformedSource), ShouldBeTrue)
			})
		}
	})
}

func TestSources(t *testing.T) {
	ctx := context.Background()

	Convey("Given a GeoJSON file", t, func() {
		path := filepath.Join(t.TempDir(), "intersections.geojson")
		So(os.WriteFile(path, []byte(intersections), 0o600), ShouldBeNil)

		Convey("When it is loaded through a file:// uri", func() {
			src, err := repository.NewSource("file://" + path)
			So(err, ShouldBeNil)
			points, err := src.Load(ctx)

			So(err, ShouldBeNil)
			So(points, ShouldHaveLength, 3)
			So(src.String(), ShouldEqual, "file://"+path)
		})

		Convey("When it is loaded through a bare path", func() {
			src, err := repository.NewSource(path)
			So(err, ShouldBeNil)
			points, err := src.Load(ctx)
			So(err, ShouldBeNil)
			So(points, ShouldHaveLength, 3)
		})

		Convey("When the file does not exist", func() {
			src, err := repository.NewSource(filepath.Join(t.TempDir(), "missing.geojson"))
			So(err, ShouldBeNil)
			_, err = src.Load(ctx)
			So(errors.Is(err, repository.ErrSourceUnreachable), ShouldBeTrue)
		})
	})

	Convey("Given an HTTP server", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/intersections.geojson" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/geo+json")
			_, _ = w.Write([]byte(intersections))
		}))
		defer server.Close()

		Convey("When the document exists", func() {
			src, err := repository.NewSource(server.URL+"/intersections.geojson", repository.WithHTTPClient(server.Client()))
			So(err, ShouldBeNil)
			points, err := src.Load(ctx)
			So(err, ShouldBeNil)
			So(points, ShouldHaveLength, 3)
		})

		Convey("When the server answers with an error status", func() {
			src, err := repository.NewSource(server.URL + "/missing")
			So(err, ShouldBeNil)
			_, err = src.Load(ctx)
			So(errors.Is(err, repository.ErrSourceUnreachable), ShouldBeTrue)
		})
	})

	Convey("Given minio uris", t, func() {
		cfg := repository.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", Region: "us-east-1"}

		Convey("When bucket and object are present", func() {
			src, err := repository.NewSource("minio://city-data/toronto/intersections.geojson", repository.WithMinIO(cfg))
			So(err, ShouldBeNil)
			m, ok := src.(*repository.MinIOSource)
			So(ok, ShouldBeTrue)
			So(m.Bucket, ShouldEqual, "city-data")
			So(m.Object, ShouldEqual, "toronto/intersections.geojson")
			So(src.String(), ShouldEqual, "minio://city-data/toronto/intersections.geojson")
		})

		Convey("When the object is missing from the uri", func() {
			_, err := repository.NewSource("minio://city-data", repository.WithMinIO(cfg))
			So(errors.Is(err, repository.ErrUnsupportedScheme), ShouldBeTrue)
		})

		Convey("When no endpoint is configured", func() {
			_, err := repository.NewSource("minio://city-data/x.geojson")
			So(errors.Is(err, repository.ErrSourceUnreachable), ShouldBeTrue)
		})
	})

	Convey("Given an unknown scheme", t, func() {
		_, err := repository.NewSource("ftp://host/file")
		So(errors.Is(err, repository.ErrUnsupportedScheme), ShouldBeTrue)

		_, err = repository.NewSource("")
		So(errors.Is(err, repository.ErrUnsupportedScheme), ShouldBeTrue)
	})
}
