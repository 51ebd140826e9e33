// Package netmetrics declares the Prometheus instrumentation updated by
// the link, router and tcp packages.
package netmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ARPCacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcpstack_arp_cache_size",
			Help: "Number of entries currently held in a NetworkInterface's ARP cache",
		},
		[]string{"interface"},
	)

	PendingDatagramsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcpstack_pending_datagrams_dropped_total",
			Help: "Datagrams dropped while waiting on ARP resolution that never completed",
		},
		[]string{"interface"},
	)

	RouteMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcpstack_route_misses_total",
			Help: "Datagrams dropped by the router for lacking a matching route",
		},
		[]string{"router"},
	)

	RetransmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcpstack_tcp_retransmissions_total",
			Help: "Segments retransmitted by a TCPSender after its retransmission timer fired",
		},
		[]string{"conn"},
	)

	CurrentRTO = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcpstack_tcp_current_rto_ms",
			Help: "A TCPSender's current retransmission timeout, in milliseconds",
		},
		[]string{"conn"},
	)
)
