package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		captureOutcomes,
		scrapeRuns,
		jobsScraped,
		scrapeDuration,
		applications,
		browsersActive,
	)
}

var (
	captureOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_capture_outcomes_total",
			Help: "Terminal login capture phases per platform.",
		},
		[]string{"platform", "phase"},
	)

	scrapeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_scrape_runs_total",
			Help: "Scrape runs per platform and result (ok/empty/expired/error).",
		},
		[]string{"platform", "result"},
	)

	jobsScraped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_jobs_scraped_total",
			Help: "Eligible job records stored per platform.",
		},
		[]string{"platform"},
	)

	scrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobpilot_scrape_duration_seconds",
			Help:    "Wall time of a scrape run.",
			Buckets: []float64{5, 10, 20, 40, 80, 160, 320},
		},
		[]string{"platform"},
	)

	applications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobpilot_applications_total",
			Help: "Application attempts per platform and final status.",
		},
		[]string{"platform", "status"},
	)

	browsersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobpilot_browsers_active",
			Help: "Live browser processes held by the registry.",
		},
	)
)

// CaptureOutcome counts a terminal capture phase
func CaptureOutcome(platform, phase string) {
	captureOutcomes.WithLabelValues(norm(platform), norm(phase)).Inc()
}

// ScrapeRun records one scrape run and the number of records it stored
func ScrapeRun(platform, result string, stored int, took time.Duration) {
	p := norm(platform)
	scrapeRuns.WithLabelValues(p, norm(result)).Inc()
	if stored > 0 {
		jobsScraped.WithLabelValues(p).Add(float64(stored))
	}
	scrapeDuration.WithLabelValues(p).Observe(took.Seconds())
}

// Application counts one finished application attempt
func Application(platform, status string) {
	applications.WithLabelValues(norm(platform), norm(status)).Inc()
}

// SetBrowsersActive reports the registry size
func SetBrowsersActive(n int) {
	browsersActive.Set(float64(n))
}
