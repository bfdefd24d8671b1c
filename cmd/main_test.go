package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/okian/roadwatch/internal/app"
	"github.com/okian/roadwatch/internal/config"
	"github.com/okian/roadwatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv("ROADWATCH_ADDR", ":8080")
		t.Setenv("ROADWATCH_QUEUE_SIZE", "1000")
		t.Setenv("ROADWATCH_ALERT_DISTANCE_METERS", "75")

		convey.Convey("Then configuration should be loadable", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.AlertDistanceMeters, convey.ShouldEqual, 75.0)
		})
	})

	convey.Convey("Given an invalid override", t, func() {
		t.Setenv("ROADWATCH_QUEUE_SIZE", "0")

		convey.Convey("Then configuration loading should fail", func() {
			_, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given the HTTP server for a service", t, func() {
		ctx := context.Background()
		svc, err := app.New(config.New())
		convey.So(err, convey.ShouldBeNil)
		srv := newHTTPServer(ctx, ":0", svc)

		convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)

		routes := []struct {
			method, path string
			status       int
		}{
			{http.MethodGet, "/healthz", http.StatusOK},
			{http.MethodGet, "/stats", http.StatusOK},
			{http.MethodGet, "/openapi.yaml", http.StatusOK},
			{http.MethodGet, "/api-docs", http.StatusOK},
			{http.MethodGet, "/intersections/nearby?lat=1&lon=1", http.StatusServiceUnavailable},
			{http.MethodPost, "/intersections/reload", http.StatusServiceUnavailable},
			{http.MethodGet, "/dashboard", http.StatusNotFound},
		}
		for _, rt := range routes {
			convey.Convey("Then "+rt.method+" "+rt.path+" is routed", func() {
				w := httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, rt.status)
			})
		}
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a configuration on an ephemeral port", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- run(ctx, cfg, logger.Noop()) }()

			time.Sleep(50 * time.Millisecond)
			cancel()

			convey.Convey("Then run shuts down cleanly", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(10 * time.Second):
					convey.So("run did not return", convey.ShouldBeEmpty)
				}
			})
		})
	})
}
