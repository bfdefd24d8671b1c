package simulate_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	service "github.com/okian/roadwatch/internal/app"
	"github.com/okian/roadwatch/internal/config"
	"github.com/okian/roadwatch/internal/simulate"
	"github.com/okian/roadwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func startService(ctx context.Context) (*service.Service, *httptest.Server) {
	svc, err := service.New(config.New())
	So(err, ShouldBeNil)
	So(svc.Start(ctx), ShouldBeNil)
	return svc, httptest.NewServer(svc.Hub())
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func fastBuiltIn() *simulate.Scenario {
	sc := simulate.BuiltIn()
	sc.Tick = 5 * time.Millisecond
	sc.Settle = 300 * time.Millisecond
	return sc
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		svc, srv := startService(ctx)
		defer svc.Stop()
		defer srv.Close()

		Convey("When the built-in scenario runs", func() {
			res, err := simulate.Run(ctx, simulate.Config{
				URL:      wsURL(srv),
				Scenario: fastBuiltIn(),
				Logger:   logger.Noop(),
			})

			Convey("Then every expected alert arrives", func() {
				So(err, ShouldBeNil)
				So(res.Passed(), ShouldBeTrue)
				So(res.Sent, ShouldEqual, 120)
				So(res.Actors, ShouldHaveLength, 2)
				So(res.Actors[0].ID, ShouldEqual, "biker1")
				So(res.Actors[0].AlertsFrom("driver1"), ShouldEqual, 1)
				So(res.Actors[1].AlertsFrom("biker1"), ShouldEqual, 1)
				So(res.Actors[1].Errors, ShouldBeEmpty)
			})

			Convey("And the summary reports a pass", func() {
				out := simulate.Render(res)
				So(out, ShouldContainSubstring, "PASS")
				So(out, ShouldContainSubstring, "driver1")
			})
		})

		Convey("When the actors never meet", func() {
			sc := fastBuiltIn()
			sc.Steps = 3
			res, err := simulate.Run(ctx, simulate.Config{URL: wsURL(srv), Scenario: sc, Logger: logger.Noop()})

			Convey("Then the missing alerts are reported", func() {
				So(errors.Is(err, simulate.ErrExpectationsFailed), ShouldBeTrue)
				So(res, ShouldNotBeNil)
				So(res.Missing, ShouldHaveLength, 2)
				So(simulate.Render(res), ShouldContainSubstring, "driver1 -> biker1")
			})
		})
	})

	Convey("Given no service", t, func() {
		srv := httptest.NewServer(nil)
		url := wsURL(srv)
		srv.Close()

		_, err := simulate.Run(context.Background(), simulate.Config{URL: url, Logger: logger.Noop()})
		So(err, ShouldNotBeNil)
	})

	Convey("Given an invalid scenario", t, func() {
		_, err := simulate.Run(context.Background(), simulate.Config{
			URL:      "ws://127.0.0.1:1",
			Scenario: &simulate.Scenario{},
		})
		So(errors.Is(err, simulate.ErrInvalidScenario), ShouldBeTrue)
	})
}
