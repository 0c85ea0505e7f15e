// internal/model/module.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ModuleStatus represents the current status of a radio module
type ModuleStatus string

const (
	ModuleStatusOnline      ModuleStatus = "ONLINE"
	ModuleStatusOffline     ModuleStatus = "OFFLINE"
	ModuleStatusError       ModuleStatus = "ERROR"
	ModuleStatusConnecting  ModuleStatus = "CONNECTING"
	ModuleStatusPassThrough ModuleStatus = "PASS_THROUGH"
)

// ConnectionType represents how the module is attached
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeUSB    ConnectionType = "USB"
	ConnectionTypeTCP    ConnectionType = "TCP"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Module represents a registered radio module or DTU gateway
type Module struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	Name             string         `json:"name" db:"name"`
	Variant          string         `json:"variant" db:"variant"`
	VariantDetected  bool           `json:"variant_detected" db:"variant_detected"`
	ConnectionType   ConnectionType `json:"connection_type" db:"connection_type"`
	ConnectionConfig JSONObject     `json:"connection_config" db:"connection_config"`
	Location         *string        `json:"location" db:"location"`
	Status           ModuleStatus   `json:"status" db:"status"`
	LastSeen         *time.Time     `json:"last_seen" db:"last_seen"`
	LastConfig       JSONObject     `json:"last_config" db:"last_config"`
	ErrorInfo        JSONObject     `json:"error_info" db:"error_info"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// IsReachable reports whether the module can currently accept commands.
func (m *Module) IsReachable() bool {
	return m.Status == ModuleStatusOnline || m.Status == ModuleStatusConnecting
}

// ConfigRequest is the API shape of a module configuration. It mirrors
// register.ConfigBlock with JSON-friendly symbolic values.
type ConfigRequest struct {
	Address      uint16 `json:"address"`
	NetID        uint8  `json:"net_id"`
	BaudRate     int    `json:"baud_rate"`      // bps
	Parity       string `json:"parity"`         // 8N1, 8O1, 8E1
	AirRate      int    `json:"air_rate"`       // bps
	Channel      uint8  `json:"channel"`
	SubPacket    int    `json:"sub_packet"`     // bytes
	AmbientNoise bool   `json:"ambient_noise"`
	PowerDBm     int    `json:"power_dbm"`
	RSSIByte     bool   `json:"rssi_byte"`
	Mode         string `json:"mode"` // transparent, fixed-point
	Relay        bool   `json:"relay"`
	LBT          bool   `json:"lbt"`
	WORRole      string `json:"wor_role"`      // receiver, transmitter, off
	WORPeriodMs  int    `json:"wor_period_ms"` // 500..4000
	Key          uint16 `json:"key,omitempty"` // write-only
	Save         bool   `json:"save"`
}

// ConfigResponse is the API shape of a configuration read back from a module,
// enriched with the derived carrier frequency.
type ConfigResponse struct {
	Address      uint16 `json:"address"`
	NetID        uint8  `json:"net_id"`
	BaudRate     int    `json:"baud_rate"`
	Parity       string `json:"parity"`
	AirRate      int    `json:"air_rate"`
	Channel      uint8  `json:"channel"`
	FrequencyMHz string `json:"frequency_mhz"`
	SubPacket    int    `json:"sub_packet"`
	AmbientNoise bool   `json:"ambient_noise"`
	PowerDBm     int    `json:"power_dbm"`
	RSSIByte     bool   `json:"rssi_byte"`
	Mode         string `json:"mode"`
	Relay        bool   `json:"relay"`
	LBT          bool   `json:"lbt"`
	WORRole      string `json:"wor_role"`
	WORPeriodMs  int    `json:"wor_period_ms"`
	Variant      string `json:"variant"`
}

// RSSIReport is the API shape of an RSSI probe result.
type RSSIReport struct {
	AmbientNoiseDBm int `json:"ambient_noise_dbm"`
	LastReceiveDBm  int `json:"last_receive_dbm"`
}
