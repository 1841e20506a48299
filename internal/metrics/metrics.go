// Package metrics exposes frame and connection counters for the chat
// client and the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector groups the counters the protocol client and relay update.
// A nil *Collector is valid and records nothing.
type Collector struct {
	FramesReceived *prometheus.CounterVec
	FramesSent     *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	Connections    prometheus.Gauge
}

// New builds a Collector and registers it on reg. A nil reg leaves the
// counters unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securechat_frames_received_total",
			Help: "Frames received, by frame type.",
		}, []string{"type"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securechat_frames_sent_total",
			Help: "Frames sent, by frame type.",
		}, []string{"type"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securechat_frames_dropped_total",
			Help: "Inbound frames discarded, by reason.",
		}, []string{"reason"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "securechat_relay_connections",
			Help: "Websocket connections currently held by the relay.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.FramesReceived, c.FramesSent, c.FramesDropped, c.Connections)
	}
	return c
}

func (c *Collector) Received(frameType string) {
	if c != nil {
		c.FramesReceived.WithLabelValues(frameType).Inc()
	}
}

func (c *Collector) Sent(frameType string) {
	if c != nil {
		c.FramesSent.WithLabelValues(frameType).Inc()
	}
}

// Dropped counts one discarded inbound frame.
func (c *Collector) Dropped(reason string) {
	if c != nil {
		c.FramesDropped.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) ConnOpened() {
	if c != nil {
		c.Connections.Inc()
	}
}

func (c *Collector) ConnClosed() {
	if c != nil {
		c.Connections.Dec()
	}
}
