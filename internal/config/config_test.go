package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/roadwatch/internal/config"
	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.Cooldown(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.IntersectionDebounce(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.ActorTTL(), convey.ShouldEqual, time.Duration(0))
			convey.So(cfg.ClassifierTimeout(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the intersection roles parse", func() {
			roles, err := cfg.Roles()
			convey.So(err, convey.ShouldBeNil)
			convey.So(roles, convey.ShouldResemble, []model.Role{model.RoleA})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When addr is empty", func() {
			cfg.Addr = ""
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the alert distance is negative", func() {
			cfg.AlertDistanceMeters = -1
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the classifier latency range is inverted", func() {
			cfg.ClassifierLatencyMinMS = 200
			cfg.ClassifierLatencyMaxMS = 100
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the sample ratio is above one", func() {
			cfg.TracingSampleRatio = 1.5
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a zero alert distance is configured", func() {
			cfg.AlertDistanceMeters = 0
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
