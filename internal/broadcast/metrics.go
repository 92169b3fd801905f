package broadcast

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "presenter_socket_connections",
			Help: "Open session socket connections",
		},
	)
	joins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presenter_session_joins_total",
			Help: "joinSession attempts by result",
		},
		[]string{"result"},
	)
	relayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presenter_relayed_frames_total",
			Help: "Frames relayed to session rooms",
		},
		[]string{"event"},
	)
	errorFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presenter_error_frames_total",
			Help: "Error frames sent by code",
		},
		[]string{"code"},
	)
)

func init() {
	prometheus.MustRegister(connectionsOpen, joins, relayed, errorFrames)
}
