package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 进程内全局指标，/metrics 通过 promhttp 默认 registry 暴露
var (
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boiler_messages_received_total",
		Help: "Total MQTT messages received on the telemetry topic.",
	})
	MessagesInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boiler_messages_invalid_total",
		Help: "Total messages dropped because the payload could not be normalized.",
	})
	ReadingsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boiler_readings_ingested_total",
		Help: "Total readings appended to the active device window.",
	})
	ReadingsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boiler_readings_discarded_total",
		Help: "Total readings discarded by the session, by reason.",
	}, []string{"reason"})

	PersistAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boiler_persist_attempts_total",
		Help: "Total individual insert attempts, including retries.",
	})
	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boiler_persist_failures_total",
		Help: "Total readings that could not be persisted, by error kind.",
	}, []string{"kind"})
	PersistSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boiler_persist_skipped_total",
		Help: "Total writes skipped because the device link is broken.",
	})
	PersistQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boiler_persist_queue_depth",
		Help: "Current number of readings waiting in the persist queue.",
	})
	PersistQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boiler_persist_queue_dropped_total",
		Help: "Total readings dropped because the persist queue was full.",
	})

	HistoryLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boiler_history_loads_total",
		Help: "Total history loads, by result.",
	}, []string{"result"})

	TransportConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boiler_transport_connected",
		Help: "1 while the MQTT transport is connected.",
	})
	StorageHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boiler_storage_healthy",
		Help: "0 while storage is degraded.",
	})
	DeviceLinkBroken = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boiler_device_link_broken",
		Help: "1 while writes for the active device are rejected by a foreign key violation.",
	})
	AmbientAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boiler_ambient_available",
		Help: "1 while ambient weather samples are available for temperature swing checks.",
	})

	ActiveAlerts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "boiler_active_alerts",
		Help: "Alerts raised by the latest evaluation, by kind.",
	}, []string{"kind"})
	Evaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boiler_alert_evaluations_total",
		Help: "Total alert evaluations.",
	})

	WeatherRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boiler_weather_refreshes_total",
		Help: "Total ambient weather refreshes, by result.",
	}, []string{"result"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boiler_websocket_clients",
		Help: "Currently connected dashboard websocket clients.",
	})
)
