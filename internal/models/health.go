package models

import "time"

// TransportState 传输连接状态
type TransportState string

const (
	TransportDisconnected TransportState = "disconnected"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportReconnecting TransportState = "reconnecting"
)

// HealthStatus 管道健康状态快照
type HealthStatus struct {
	TransportState     TransportState `json:"transport_state"`
	TransportConnected bool           `json:"transport_connected"`
	StorageHealthy     bool           `json:"storage_healthy"`
	DeviceLinkBroken   bool           `json:"device_link_broken"`
	AmbientAvailable   bool           `json:"ambient_available"`
	LastReadingAt      *time.Time     `json:"last_reading_at,omitempty"`
}
