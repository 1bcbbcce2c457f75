package domain

import (
	"math"
	"strings"
)

// MinValidTimestampMs rejects observations stamped before 2000-01-01 UTC.
// Devices without a GPS fix or RTC often report epoch-zero style clocks.
const MinValidTimestampMs int64 = 946684800000

// RadioType identifies the radio technology of an observed emitter.
type RadioType string

const (
	RadioWiFi    RadioType = "WiFi"
	RadioBLE     RadioType = "BLE"
	RadioBT      RadioType = "BT"
	RadioLTE     RadioType = "LTE"
	RadioNR      RadioType = "NR"
	RadioGSM     RadioType = "GSM"
	RadioUnknown RadioType = "Unknown"
)

// ParseRadioType maps common spellings to a RadioType.
// Unrecognized values map to RadioUnknown.
func ParseRadioType(s string) RadioType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WIFI", "W", "WLAN":
		return RadioWiFi
	case "BLE", "E":
		return RadioBLE
	case "BT", "B", "BLUETOOTH":
		return RadioBT
	case "LTE", "L":
		return RadioLTE
	case "NR", "N", "5G":
		return RadioNR
	case "GSM", "G":
		return RadioGSM
	default:
		return RadioUnknown
	}
}

// IsCellular reports whether the radio type is a cellular technology.
func (r RadioType) IsCellular() bool {
	return r == RadioLTE || r == RadioNR || r == RadioGSM
}

// Observation is a single sighting of a radio emitter.
// Observations are owned by the ingestion side and are read-only here.
type Observation struct {
	NetworkID   string    `json:"networkId"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	TimestampMs int64     `json:"timestampMs"`
	SignalDbm   *float64  `json:"signalDbm,omitempty"`
	RadioType   RadioType `json:"radioType"`
	SSID        string    `json:"ssid,omitempty"`
}

// HasValidTimestamp reports whether the observation clock is plausible.
func (o *Observation) HasValidTimestamp() bool {
	return o.TimestampMs >= MinValidTimestampMs
}

// IsLocated reports whether the observation carries usable coordinates.
func (o *Observation) IsLocated() bool {
	return ValidCoordinates(o.Lat, o.Lon) && !(o.Lat == 0 && o.Lon == 0)
}

// ValidCoordinates reports whether lat/lon are finite and within range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// NormalizeNetworkID trims and upper-cases a radio identifier so that
// "aa:bb:cc" and "AA:BB:CC " refer to the same network.
func NormalizeNetworkID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Network is the per-network summary maintained by the store as
// observations arrive.
type Network struct {
	NetworkID        string    `json:"networkId"`
	SSID             string    `json:"ssid,omitempty"`
	RadioType        RadioType `json:"radioType"`
	FirstSeenMs      int64     `json:"firstSeenMs"`
	LastSeenMs       int64     `json:"lastSeenMs"`
	ObservationCount int64     `json:"observationCount"`
	BestSignalDbm    *float64  `json:"bestSignalDbm,omitempty"`
	LastLat          *float64  `json:"lastLat,omitempty"`
	LastLon          *float64  `json:"lastLon,omitempty"`
}
