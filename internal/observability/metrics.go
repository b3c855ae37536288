package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the game server. Instruments
// are registered against the registerer passed to NewMetrics, so tests can
// use an isolated registry.
type Metrics struct {
	// ActiveConnections tracks currently connected websocket clients.
	ActiveConnections prometheus.Gauge

	// OpenRooms tracks rooms that exist and are not archived.
	OpenRooms prometheus.Gauge

	// RoomsCreated counts rooms created since process start.
	RoomsCreated prometheus.Counter

	// RoomsArchived counts rooms archived since process start.
	RoomsArchived prometheus.Counter

	// GamesCompleted counts games that reached completion.
	GamesCompleted prometheus.Counter

	// MoveSubmissions counts accepted move submissions.
	MoveSubmissions prometheus.Counter

	// RandomFailures counts failed draws from the random-number service.
	RandomFailures prometheus.Counter
}

// NewMetrics registers the game server instruments against reg.
//
// Precondition: reg is non-nil and has no prior registration of these
// instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gameserver_active_connections",
			Help: "Number of currently connected websocket clients",
		}),
		OpenRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gameserver_open_rooms",
			Help: "Number of rooms currently open",
		}),
		RoomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_rooms_created_total",
			Help: "Total number of rooms created",
		}),
		RoomsArchived: factory.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_rooms_archived_total",
			Help: "Total number of rooms archived",
		}),
		GamesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_games_completed_total",
			Help: "Total number of games completed",
		}),
		MoveSubmissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_move_submissions_total",
			Help: "Total number of accepted move submissions",
		}),
		RandomFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_random_failures_total",
			Help: "Total number of failed draws from the random-number service",
		}),
	}
}
