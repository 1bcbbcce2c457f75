package domain

// SQLQuery is a parameterized statement with "?" placeholders.
// Repositories rebind placeholders for their driver.
type SQLQuery struct {
	SQL  string
	Args []any
}

// NetworkThreat is one row of a filtered network listing: the network
// summary joined with its score record and active tag, if any.
type NetworkThreat struct {
	NetworkID        string   `json:"networkId"`
	SSID             string   `json:"ssid"`
	RadioType        string   `json:"radioType"`
	FirstSeenMs      int64    `json:"firstSeenMs"`
	LastSeenMs       int64    `json:"lastSeenMs"`
	ObservationCount int64    `json:"observationCount"`
	BestSignalDbm    *float64 `json:"bestSignalDbm,omitempty"`
	LastLat          *float64 `json:"lastLat,omitempty"`
	LastLon          *float64 `json:"lastLon,omitempty"`

	Scored            bool        `json:"scored"`
	FinalScore        float64     `json:"finalScore"`
	FinalLevel        ThreatLevel `json:"finalLevel"`
	ThreatType        string      `json:"threatType,omitempty"`
	RuleBasedScore    float64     `json:"ruleBasedScore"`
	MLScore           *float64    `json:"mlScore,omitempty"`
	Candidate         bool        `json:"candidate"`
	TransparencyError bool        `json:"transparencyError"`
	UniqueDays        int         `json:"uniqueDaysObserved"`
	MinDistanceKm     *float64    `json:"minDistanceFromHomeKm,omitempty"`

	TagType       TagType  `json:"tagType,omitempty"`
	TagConfidence *float64 `json:"tagConfidence,omitempty"`
}

// GeoPoint is one located observation returned for map rendering.
type GeoPoint struct {
	NetworkID   string      `json:"networkId"`
	Lat         float64     `json:"lat"`
	Lon         float64     `json:"lon"`
	TimestampMs int64       `json:"timestampMs"`
	SignalDbm   *float64    `json:"signalDbm,omitempty"`
	RadioType   string      `json:"radioType"`
	FinalLevel  ThreatLevel `json:"finalLevel"`
}
