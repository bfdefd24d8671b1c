package classify_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/roadwatch/internal/domain/classify"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSimulatedClassifier(t *testing.T) {
	Convey("Given a simulated classifier with no latency", t, func() {
		frame := classify.Frame{ActorID: "driver1", Image: []byte("jpeg")}

		Convey("When every frame is a hit", func() {
			c := classify.NewSimulatedClassifier(
				classify.WithLatencyRange(0, 0),
				classify.WithDetectionRate(1),
				classify.WithLabel("truck"),
			)
			res, err := c.Classify(context.Background(), frame)

			Convey("Then it reports the configured label", func() {
				So(err, ShouldBeNil)
				So(res.Detected, ShouldBeTrue)
				So(res.Label, ShouldEqual, "truck")
				So(res.Confidence, ShouldBeBetweenOrEqual, 0.5, 1)
			})
		})

		Convey("When no frame is a hit", func() {
			c := classify.NewSimulatedClassifier(classify.WithLatencyRange(0, 0), classify.WithDetectionRate(0))
			res, err := c.Classify(context.Background(), frame)
			So(err, ShouldBeNil)
			So(res.Detected, ShouldBeFalse)
		})

		Convey("When the same seed is used twice", func() {
			a := classify.NewSimulatedClassifier(classify.WithLatencyRange(0, 0), classify.WithSeed(7))
			b := classify.NewSimulatedClassifier(classify.WithLatencyRange(0, 0), classify.WithSeed(7))

			Convey("Then the verdicts are identical", func() {
				for i := 0; i < 20; i++ {
					ra, _ := a.Classify(context.Background(), frame)
					rb, _ := b.Classify(context.Background(), frame)
					So(ra, ShouldResemble, rb)
				}
			})
		})

		Convey("When the frame is empty", func() {
			c := classify.NewSimulatedClassifier()
			_, err := c.Classify(context.Background(), classify.Frame{ActorID: "x"})
			So(errors.Is(err, classify.ErrEmptyFrame), ShouldBeTrue)
		})

		Convey("When the context is cancelled during the simulated latency", func() {
			c := classify.NewSimulatedClassifier(classify.WithLatencyRange(time.Second, 2*time.Second))
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := c.Classify(ctx, frame)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestHTTPClassifier(t *testing.T) {
	Convey("Given an external classifier", t, func() {
		var gotImage string
		answer := `{"detected": true, "label": "car", "confidence": 0.91}`
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Image string `json:"image"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotImage = body.Image
			w.WriteHeader(status)
			_, _ = w.Write([]byte(answer))
		}))
		defer srv.Close()

		c := classify.NewHTTPClassifier(srv.URL, "car", time.Second)
		frame := classify.Frame{ActorID: "driver1", Image: []byte{0xff, 0xd8, 0xff}}

		Convey("When it detects the label", func() {
			res, err := c.Classify(context.Background(), frame)

			Convey("Then the frame was sent base64 encoded and the result parsed", func() {
				So(err, ShouldBeNil)
				So(gotImage, ShouldEqual, base64.StdEncoding.EncodeToString(frame.Image))
				So(res, ShouldResemble, classify.Result{Detected: true, Label: "car", Confidence: 0.91})
			})
		})

		Convey("When it detects a different label", func() {
			answer = `{"detected": true, "label": "bus", "confidence": 0.8}`
			res, err := c.Classify(context.Background(), frame)
			So(err, ShouldBeNil)
			So(res.Detected, ShouldBeFalse)
		})

		Convey("When it answers with a bare boolean", func() {
			answer = `true`
			res, err := c.Classify(context.Background(), frame)
			So(err, ShouldBeNil)
			So(res.Detected, ShouldBeTrue)
			So(res.Label, ShouldEqual, "car")
		})

		Convey("When it fails", func() {
			status = http.StatusInternalServerError
			_, err := c.Classify(context.Background(), frame)
			So(errors.Is(err, classify.ErrClassifierStatus), ShouldBeTrue)
		})

		Convey("When it answers garbage", func() {
			answer = `<html>`
			_, err := c.Classify(context.Background(), frame)
			So(errors.Is(err, classify.ErrBadResponse), ShouldBeTrue)
		})
	})
}
