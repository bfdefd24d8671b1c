package schema_test

import (
	"errors"
	"testing"

	"github.com/okian/roadwatch/internal/schema"
	. "github.com/smartystreets/goconvey/convey"
)

func TestReportValidator(t *testing.T) {
	Convey("Given the report validator", t, func() {
		v, err := schema.NewReportValidator()
		So(err, ShouldBeNil)

		Convey("Then websocket updates and kafka reports are accepted", func() {
			So(v.ValidateBytes([]byte(`{"type":"update","id":"driver1","role":"A","latitude":43.6629,"longitude":-79.3957}`)), ShouldBeNil)
			So(v.ValidateBytes([]byte(`{"id":"biker1","role":"cyclist","latitude":0,"longitude":0,"report_id":"r-1"}`)), ShouldBeNil)
			So(v.ValidateBytes([]byte(`{"type":"update","id":"biker1","userType":"biker","latitude":0,"longitude":0}`)), ShouldBeNil)
		})

		Convey("Then malformed reports are rejected", func() {
			bad := []string{
				`{"id":"driver1","role":"A","latitude":43.6}`,
				`{"id":"","role":"A","latitude":1,"longitude":1}`,
				`{"id":"x","role":"pedestrian","latitude":1,"longitude":1}`,
				`{"id":"x","latitude":1,"longitude":1}`,
				`{"id":"x","role":"A","latitude":91,"longitude":1}`,
				`{"id":"x","role":"A","latitude":1,"longitude":-181}`,
				`{"id":"x","role":"A","latitude":"1","longitude":1}`,
				`{"type":"frame","id":"x","role":"A","latitude":1,"longitude":1}`,
			}
			for _, doc := range bad {
				So(errors.Is(v.ValidateBytes([]byte(doc)), schema.ErrInvalidDocument), ShouldBeTrue)
			}
		})

		Convey("Then broken JSON is reported as such", func() {
			So(errors.Is(v.ValidateBytes([]byte(`{"id":`)), schema.ErrInvalidJSON), ShouldBeTrue)
		})
	})
}

func TestFrameValidator(t *testing.T) {
	Convey("Given the frame validator", t, func() {
		v, err := schema.NewFrameValidator()
		So(err, ShouldBeNil)

		So(v.ValidateBytes([]byte(`{"type":"frame","id":"driver1","image":"aGVsbG8="}`)), ShouldBeNil)
		So(errors.Is(v.ValidateBytes([]byte(`{"type":"frame","id":"driver1","image":"not base64!"}`)), schema.ErrInvalidDocument), ShouldBeTrue)
		So(errors.Is(v.ValidateBytes([]byte(`{"type":"frame","id":"driver1"}`)), schema.ErrInvalidDocument), ShouldBeTrue)
	})
}
