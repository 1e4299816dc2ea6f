package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	t.Run("HTTP", func(t *testing.T) {
		c := httpRequests.WithLabelValues("/bookings", "201")
		before := counterValue(t, c)
		IncHTTP("/bookings", http.StatusCreated)
		assert.Equal(t, before+1, counterValue(t, c))
	})

	t.Run("Bookings", func(t *testing.T) {
		before := counterValue(t, bookingsCreated)
		IncBookingCreated()
		assert.Equal(t, before+1, counterValue(t, bookingsCreated))

		rej := bookingRejections.WithLabelValues("TimeWindowOccupied")
		before = counterValue(t, rej)
		IncBookingRejected("TimeWindowOccupied")
		assert.Equal(t, before+1, counterValue(t, rej))
	})

	t.Run("Decisions", func(t *testing.T) {
		approved := bookingDecisions.WithLabelValues("approved")
		rejected := bookingDecisions.WithLabelValues("rejected")
		a0, r0 := counterValue(t, approved), counterValue(t, rejected)

		IncBookingDecision(true)
		IncBookingDecision(false)
		IncBookingDecision(false)

		assert.Equal(t, a0+1, counterValue(t, approved))
		assert.Equal(t, r0+2, counterValue(t, rejected))
	})

	t.Run("ReserveAndOutbox", func(t *testing.T) {
		assert.NotPanics(t, func() {
			ObserveReserve(time.Now().Add(-time.Millisecond))
			IncOutbox("delivered")
		})
	})
}
