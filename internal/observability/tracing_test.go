package observability_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/okian/roadwatch/internal/config"
	"github.com/okian/roadwatch/internal/observability"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInitTracing(t *testing.T) {
	ctx := context.Background()

	Convey("Given tracing is disabled", t, func() {
		shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFrom(config.New()), nil)

		Convey("Then a noop provider is installed", func() {
			So(err, ShouldBeNil)
			_, span := otel.Tracer("test").Start(ctx, "noop")
			So(span.SpanContext().IsValid(), ShouldBeFalse)
			span.End()
			So(shutdown(ctx), ShouldBeNil)
		})
	})

	Convey("Given the stdout exporter", t, func() {
		var buf bytes.Buffer
		shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
			Enabled: true, Exporter: "stdout", SampleRatio: 1, Writer: &buf,
		}, nil)
		So(err, ShouldBeNil)

		Convey("When a span ends and the provider shuts down", func() {
			_, span := otel.Tracer("test").Start(ctx, "proximity.report")
			So(span.SpanContext().IsValid(), ShouldBeTrue)
			span.End()
			observability.ShutdownWithTimeout(ctx, shutdown, nil)

			Convey("Then the span is exported", func() {
				So(buf.String(), ShouldContainSubstring, "proximity.report")
			})
		})
	})

	Convey("Given an unknown exporter", t, func() {
		_, err := observability.InitTracing(ctx, observability.TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
		So(errors.Is(err, observability.ErrUnsupportedExporter), ShouldBeTrue)
	})
}
