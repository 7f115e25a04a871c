package models

// Device 锅炉设备（对应 dispositivos 表）
type Device struct {
	DeviceID        string `json:"device_id"`
	Unit            string `json:"unit,omitempty"`
	Location        string `json:"location,omitempty"`
	CondominiumID   string `json:"condominium_id"`
	CondominiumName string `json:"condominium_name,omitempty"`
}
