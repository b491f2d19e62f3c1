package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetOnline(3)
	m.Published("newMessage")
	m.Published("newMessage")
	m.Dropped("newMessage", "offline")
	m.Stored()

	require.Equal(t, 3.0, testutil.ToFloat64(m.OnlineUsers))
	require.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("newMessage")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues("newMessage", "offline")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MessagesStored))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.SetOnline(1)
	m.Published("x")
	m.Delivered("x")
	m.Dropped("x", "y")
	m.Stored()
	m.StoreError("x")
}
