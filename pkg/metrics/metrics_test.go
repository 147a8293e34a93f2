package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should register its collectors there", func() {
				So(manager, ShouldNotBeNil)
				manager.registrations.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_namespace_test_subsystem_registrations_total")
			})
		})

		Convey("When empty options are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "drivescore")
				So(manager.subsystem, ShouldEqual, "questionnaire")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording questionnaire events", func() {
			before := testutil.ToFloat64(globalManager.submissions.WithLabelValues("accepted"))
			RecordSubmission("accepted")
			RecordAnalysis("fallback", "not_configured")
			RecordPersistenceError("statistics")
			RecordStatisticsUpdate("started")
			UpdateActiveSessions(3)
			UpdateSubmissionsInFlight(2)

			Convey("Then the counters should move", func() {
				So(testutil.ToFloat64(globalManager.submissions.WithLabelValues("accepted")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.activeSessions), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.submissionsRunning), ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.analysisResults.WithLabelValues("fallback", "not_configured")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording HTTP and system metrics", func() {
			So(func() {
				RecordRegistration()
				RecordValidationFailure()
				RecordAnalysisLatency(120)
				RecordHTTPRequest("submit", "POST", "200")
				RecordHTTPRequestDuration("submit", "POST", "200", 12)
				RecordErrorByEndpoint("submit", "POST", "client_error")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
