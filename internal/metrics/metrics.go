// Package metrics registers the Prometheus collectors for the chat core.
// HTTP request metrics live in the http middleware; the collectors here cover
// the websocket side.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of active websocket sessions",
	})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_messages_total",
		Help: "Total number of chat messages persisted and broadcast",
	})
	WsEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_events_total",
		Help: "Total number of inbound websocket events by type",
	}, []string{"event"})
	WsDroppedSends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_dropped_sends_total",
		Help: "Outbound events dropped because a session send queue was full",
	})
	RoomJoins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_room_joins_total",
		Help: "Total number of room join operations",
	})
	RoomLeaves = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_room_leaves_total",
		Help: "Total number of room leave operations",
	})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		WsMessagesTotal,
		WsEventsTotal,
		WsDroppedSends,
		RoomJoins,
		RoomLeaves,
	)
}
