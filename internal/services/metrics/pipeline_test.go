package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersNormaliseLabels(t *testing.T) {
	before := testutil.ToFloat64(captureOutcomes.WithLabelValues("naukri", "connected"))
	CaptureOutcome(" Naukri", "CONNECTED")
	assert.Equal(t, before+1, testutil.ToFloat64(captureOutcomes.WithLabelValues("naukri", "connected")))

	stored := testutil.ToFloat64(jobsScraped.WithLabelValues("linkedin"))
	ScrapeRun("linkedin", "ok", 7, 3*time.Second)
	ScrapeRun("linkedin", "empty", 0, time.Second)
	assert.Equal(t, stored+7, testutil.ToFloat64(jobsScraped.WithLabelValues("linkedin")))

	SetBrowsersActive(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(browsersActive))
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}
