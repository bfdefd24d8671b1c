package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/roadwatch/internal/adapters/dispatch"
	"github.com/okian/roadwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRouter(t *testing.T) {
	Convey("Given a router with a websocket route", t, func() {
		ctx := context.Background()
		router := dispatch.NewRouter()

		var got []model.Envelope
		router.Handle(model.TransportWS, dispatch.DispatcherFunc(func(_ context.Context, _ model.Conn, env model.Envelope) error {
			got = append(got, env)
			return nil
		}))

		env := model.NewEnvelope("driver1", model.Alert{Kind: model.KindAlert, FromID: "biker1"}, time.Unix(0, 0))

		Convey("When an envelope targets a websocket connection", func() {
			err := router.Deliver(ctx, model.Conn{Transport: model.TransportWS, ID: "c1"}, env)

			Convey("Then the websocket dispatcher receives it", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].Recipient, ShouldEqual, "driver1")
			})
		})

		Convey("When the transport has no route", func() {
			err := router.Deliver(ctx, model.Conn{Transport: model.TransportKafka, ID: "driver1"}, env)

			Convey("Then ErrNoRoute is returned", func() {
				So(errors.Is(err, dispatch.ErrNoRoute), ShouldBeTrue)
				So(got, ShouldBeEmpty)
			})
		})

		Convey("When the dispatcher fails", func() {
			boom := errors.New("buffer full")
			router.Handle(model.TransportKafka, dispatch.DispatcherFunc(func(context.Context, model.Conn, model.Envelope) error {
				return boom
			}))
			err := router.Deliver(ctx, model.Conn{Transport: model.TransportKafka, ID: "driver1"}, env)

			Convey("Then the error is passed through", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
			})
		})
	})
}
