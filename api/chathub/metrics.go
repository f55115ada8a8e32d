package chathub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_active",
		Help: "Number of realtime chat connections currently registered on the hub.",
	})

	messagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_relayed_total",
		Help: "Chat messages relayed through the hub, by sender kind.",
	}, []string{"kind"})

	typingRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_typing_events_relayed_total",
		Help: "Typing indicator events relayed through the hub.",
	})
)
