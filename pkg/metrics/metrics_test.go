package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewManager(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with a custom namespace", func() {
			m := NewManager(
				WithNamespace("solar"),
				WithPrometheusRegistry(registry),
			)
			m.submissions.WithLabelValues("intake", "ok").Inc()

			Convey("Then metric names carry the namespace and subsystem", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(strings.Join(names, ","), ShouldContainSubstring, "solar_webhook_submissions_total")
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global manager is reconfigured", t, func() {
		defer Configure()

		Convey("When recording is disabled", func() {
			Configure(WithNamespace("quiet"), WithMetricsEnabled(false))
			RecordSubmission("intake", "ok")

			Convey("Then the served registry has the namespace but counts nothing", func() {
				So(counterValue("quiet_webhook_submissions_total", nil), ShouldEqual, 0)
				So(counterValue("tally_webhook_submissions_total", nil), ShouldEqual, 0)
			})
		})

		Convey("When recording under a new namespace", func() {
			Configure(WithNamespace("solar"))
			RecordSubmission("category", "ok")

			Convey("Then the served registry counts under that namespace", func() {
				So(counterValue("solar_webhook_submissions_total", map[string]string{"handler": "category"}), ShouldEqual, 1)
			})
		})
	})
}

// counterValue sums the global counter family name whose labels include want.
func counterValue(name string, want map[string]string) float64 {
	families, err := GetRegistry().Gather()
	if err != nil {
		return -1
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			have := map[string]string{}
			for _, lp := range m.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if have[k] != v {
					continue metrics
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording submissions", func() {
			labels := map[string]string{"handler": "category", "outcome": "ok"}
			before := counterValue("tally_webhook_submissions_total", labels)
			RecordSubmission("category", "ok")

			Convey("Then the counter grows by one", func() {
				So(counterValue("tally_webhook_submissions_total", labels)-before, ShouldEqual, 1)
			})
		})

		Convey("When recording conflicts and duplicates", func() {
			c0 := counterValue("tally_webhook_score_conflicts_total", nil)
			d0 := counterValue("tally_webhook_duplicate_deliveries_total", map[string]string{"handler": "intake"})
			RecordScoreConflict()
			RecordDuplicateDelivery("intake")

			Convey("Then both counters grow", func() {
				So(counterValue("tally_webhook_score_conflicts_total", nil)-c0, ShouldEqual, 1)
				So(counterValue("tally_webhook_duplicate_deliveries_total", map[string]string{"handler": "intake"})-d0, ShouldEqual, 1)
			})
		})

		Convey("When observing scores and store calls", func() {
			RecordCategoryScore("design", 86)
			RecordOverallScore(80)
			RecordStoreOperation("update_category", "ok", 12)
			RecordIdentityResolution("hidden")

			Convey("Then the registry gathers them", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["tally_webhook_category_score"], ShouldBeTrue)
				So(names["tally_webhook_store_latency_milliseconds"], ShouldBeTrue)
				So(counterValue("tally_webhook_identity_resolutions_total", map[string]string{"source": "hidden"}), ShouldBeGreaterThan, 0)
			})
		})
	})
}
