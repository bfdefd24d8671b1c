package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a metrics manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(
			WithNamespace("test"),
			WithSubsystem("unit"),
			WithHistogramBuckets([]float64{1, 10, 100}),
			WithConstLabels(map[string]string{"env": "test"}),
			WithPrometheusRegistry(registry),
		)

		Convey("When a counter is incremented", func() {
			manager.alertsEmitted.Inc()
			manager.alertsEmitted.Inc()

			Convey("Then the registry exposes it under the configured namespace", func() {
				family := findFamily(t, registry, "test_unit_alerts_emitted_total")
				So(family, ShouldNotBeNil)
				So(family.GetMetric(), ShouldHaveLength, 1)
				So(family.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, 2.0)
			})

			Convey("And the constant labels are attached", func() {
				family := findFamily(t, registry, "test_unit_alerts_emitted_total")
				labels := family.GetMetric()[0].GetLabel()
				So(labels, ShouldHaveLength, 1)
				So(labels[0].GetName(), ShouldEqual, "env")
				So(labels[0].GetValue(), ShouldEqual, "test")
			})
		})

		Convey("When a histogram is observed", func() {
			manager.sweepLatency.Observe(5)

			Convey("Then it uses the configured buckets", func() {
				family := findFamily(t, registry, "test_unit_sweep_latency_milliseconds")
				So(family, ShouldNotBeNil)
				So(family.GetMetric()[0].GetHistogram().GetBucket(), ShouldHaveLength, 3)
				So(family.GetMetric()[0].GetHistogram().GetSampleCount(), ShouldEqual, uint64(1))
			})
		})
	})
}

func TestEmptyOptionsKeepDefaults(t *testing.T) {
	Convey("Given empty option values", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(
			WithNamespace(""),
			WithSubsystem(""),
			WithHistogramBuckets(nil),
			WithConstLabels(nil),
			WithPrometheusRegistry(registry),
		)

		Convey("Then defaults are preserved", func() {
			So(manager.namespace, ShouldEqual, "roadwatch")
			So(manager.subsystem, ShouldEqual, "engine")
			So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When labelled recorders are called", func() {
			RecordReportReceived("ws")
			RecordReportRejected("malformed")
			RecordDeliveryError("kafka")
			RecordIntersectionTransition(true)
			RecordIntersectionTransition(false)
			RecordCommandLatency("report", 0.4)
			RecordKafkaMessage("consumed")

			Convey("Then the series appear in the custom registry", func() {
				family := findFamily(t, GetRegistry(), "roadwatch_engine_intersection_transitions_total")
				So(family, ShouldNotBeNil)
				So(len(family.GetMetric()), ShouldBeGreaterThanOrEqualTo, 2)

				rejected := findFamily(t, GetRegistry(), "roadwatch_engine_reports_rejected_total")
				So(rejected, ShouldNotBeNil)
			})
		})

		Convey("When every unlabelled recorder is called", func() {
			So(func() {
				RecordAlertEmitted()
				RecordPairMatched()
				UpdateActiveActors(3)
				UpdateActiveCooldowns(1)
				RecordActorsEvicted(2)
				RecordSweepLatency(0.2)
				RecordSweepPanic()
				UpdateIndexPoints(10)
				RecordIndexLoadError()
				RecordIndexLoadDuration(12)
				RecordClassifierRequest()
				RecordClassifierPositive()
				RecordClassifierError()
				RecordClassifierLatency(90)
				RecordFrameGated()
				RecordFrameBusy()
				UpdateQueueSize(5)
				UpdateQueueCapacity(10)
				UpdateQueueUtilization(0.5)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWebsocketConnections(4)
				RecordKafkaDuplicate()
				RecordHTTPRequest("/stats", "GET", "200")
				RecordHTTPRequestDuration("/stats", "GET", "200", 1.5)
				RecordErrorByComponent("ws", "write")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(WithPrometheusRegistry(registry))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					manager.pairsMatched.Inc()
				}
			}()
		}
		wg.Wait()

		Convey("Then no increment is lost", func() {
			family := findFamily(t, registry, "roadwatch_engine_pairs_matched_total")
			So(family.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, 800.0)
		})
	})
}
