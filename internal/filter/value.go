package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Kind names the shape of a filter value.
type Kind string

const (
	KindText        Kind = "text"
	KindTextSet     Kind = "textSet"
	KindNumber      Kind = "number"
	KindFlag        Kind = "flag"
	KindBoundingBox Kind = "boundingBox"
	KindRadius      Kind = "radius"
	KindTimeframe   Kind = "timeframe"
)

// Value is a decoded filter value. The set of implementations is closed.
type Value interface {
	Kind() Kind
	sealed()
}

// Text is a free-text match.
type Text struct{ V string }

// TextSet is a membership match.
type TextSet struct{ V []string }

// Number is a numeric bound.
type Number struct{ V float64 }

// Flag is an on/off restriction.
type Flag struct{ V bool }

// BoundingBox restricts to a lat/lon rectangle. West > East crosses the antimeridian.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Radius restricts to a circle around a point.
type Radius struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	RadiusM float64 `json:"radiusM"`
}

// Timeframe restricts by last sighting, either a relative window ending
// now or an absolute [StartMs, EndMs] range.
type Timeframe struct {
	Type           string `json:"type"`
	RelativeWindow string `json:"relativeWindow,omitempty"`
	StartMs        *int64 `json:"startMs,omitempty"`
	EndMs          *int64 `json:"endMs,omitempty"`
}

func (Text) Kind() Kind        { return KindText }
func (TextSet) Kind() Kind     { return KindTextSet }
func (Number) Kind() Kind      { return KindNumber }
func (Flag) Kind() Kind        { return KindFlag }
func (BoundingBox) Kind() Kind { return KindBoundingBox }
func (Radius) Kind() Kind      { return KindRadius }
func (Timeframe) Kind() Kind   { return KindTimeframe }

func (Text) sealed()        {}
func (TextSet) sealed()     {}
func (Number) sealed()      {}
func (Flag) sealed()        {}
func (BoundingBox) sealed() {}
func (Radius) sealed()      {}
func (Timeframe) sealed()   {}

// Filter keys.
const (
	KeySSID                   = "ssid"
	KeyBSSID                  = "bssid"
	KeyRadioTypes             = "radioTypes"
	KeyThreatLevels           = "threatLevels"
	KeyTagTypes               = "tagTypes"
	KeyThreatScoreMin         = "threatScoreMin"
	KeyThreatScoreMax         = "threatScoreMax"
	KeyObservationCountMin    = "observationCountMin"
	KeyObservationCountMax    = "observationCountMax"
	KeySignalMin              = "signalMin"
	KeySignalMax              = "signalMax"
	KeyUniqueDaysMin          = "uniqueDaysMin"
	KeyTimeframe              = "timeframe"
	KeyDistanceFromHomeMin    = "distanceFromHomeMin"
	KeyDistanceFromHomeMax    = "distanceFromHomeMax"
	KeyBoundingBox            = "boundingBox"
	KeyRadiusFilter           = "radiusFilter"
	KeyTransparencyErrorsOnly = "transparencyErrorsOnly"
	KeyCandidatesOnly         = "candidatesOnly"
)

// keyKinds is the registry of known filter keys.
var keyKinds = map[string]Kind{
	KeySSID:                   KindText,
	KeyBSSID:                  KindText,
	KeyRadioTypes:             KindTextSet,
	KeyThreatLevels:           KindTextSet,
	KeyTagTypes:               KindTextSet,
	KeyThreatScoreMin:         KindNumber,
	KeyThreatScoreMax:         KindNumber,
	KeyObservationCountMin:    KindNumber,
	KeyObservationCountMax:    KindNumber,
	KeySignalMin:              KindNumber,
	KeySignalMax:              KindNumber,
	KeyUniqueDaysMin:          KindNumber,
	KeyTimeframe:              KindTimeframe,
	KeyDistanceFromHomeMin:    KindNumber,
	KeyDistanceFromHomeMax:    KindNumber,
	KeyBoundingBox:            KindBoundingBox,
	KeyRadiusFilter:           KindRadius,
	KeyTransparencyErrorsOnly: KindFlag,
	KeyCandidatesOnly:         KindFlag,
}

// Keys returns every known filter key, sorted.
func Keys() []string {
	out := make([]string, 0, len(keyKinds))
	for k := range keyKinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KindOf returns the value kind of a known key.
func KindOf(key string) (Kind, bool) {
	k, ok := keyKinds[key]
	return k, ok
}

// Payload is an analyst filter payload split into decoded values,
// values that failed to decode, and keys that are not filters at all.
type Payload struct {
	Known   map[string]Value
	Invalid map[string]string // key -> reason
	Unknown []string
}

// ParsePayload decodes a raw filter payload. It never fails: every key
// lands in exactly one of Known, Invalid or Unknown.
func ParsePayload(raw map[string]json.RawMessage) Payload {
	p := Payload{
		Known:   make(map[string]Value, len(raw)),
		Invalid: make(map[string]string),
	}
	for key, msg := range raw {
		kind, ok := KindOf(key)
		if !ok {
			p.Unknown = append(p.Unknown, key)
			continue
		}
		v, err := decode(kind, msg)
		if err != nil {
			p.Invalid[key] = err.Error()
			continue
		}
		p.Known[key] = v
	}
	sort.Strings(p.Unknown)
	return p
}

func isNull(msg json.RawMessage) bool {
	s := strings.TrimSpace(string(msg))
	return s == "" || s == "null"
}

func decode(kind Kind, msg json.RawMessage) (Value, error) {
	if isNull(msg) {
		return nil, fmt.Errorf("no value")
	}

	switch kind {
	case KindText:
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, fmt.Errorf("expected a string")
		}
		return Text{V: s}, nil

	case KindTextSet:
		var list []string
		if err := json.Unmarshal(msg, &list); err == nil {
			return TextSet{V: list}, nil
		}
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, fmt.Errorf("expected a list of strings")
		}
		return TextSet{V: splitList(s)}, nil

	case KindNumber:
		var f float64
		if err := json.Unmarshal(msg, &f); err == nil {
			return Number{V: f}, nil
		}
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, fmt.Errorf("expected a number")
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", s)
		}
		return Number{V: f}, nil

	case KindFlag:
		var b bool
		if err := json.Unmarshal(msg, &b); err != nil {
			return nil, fmt.Errorf("expected true or false")
		}
		return Flag{V: b}, nil

	case KindBoundingBox:
		var raw struct {
			North *float64 `json:"north"`
			South *float64 `json:"south"`
			East  *float64 `json:"east"`
			West  *float64 `json:"west"`
		}
		if err := json.Unmarshal(msg, &raw); err != nil {
			return nil, fmt.Errorf("expected {north, south, east, west}")
		}
		if raw.North == nil || raw.South == nil || raw.East == nil || raw.West == nil {
			return nil, fmt.Errorf("bounding box requires north, south, east and west")
		}
		return BoundingBox{North: *raw.North, South: *raw.South, East: *raw.East, West: *raw.West}, nil

	case KindRadius:
		var raw struct {
			Lat     *float64 `json:"lat"`
			Lon     *float64 `json:"lon"`
			RadiusM *float64 `json:"radiusM"`
		}
		if err := json.Unmarshal(msg, &raw); err != nil {
			return nil, fmt.Errorf("expected {lat, lon, radiusM}")
		}
		if raw.Lat == nil || raw.Lon == nil || raw.RadiusM == nil {
			return nil, fmt.Errorf("radius filter requires lat, lon and radiusM")
		}
		return Radius{Lat: *raw.Lat, Lon: *raw.Lon, RadiusM: *raw.RadiusM}, nil

	case KindTimeframe:
		var tf Timeframe
		if err := json.Unmarshal(msg, &tf); err != nil {
			return nil, fmt.Errorf("expected {type, relativeWindow | startMs, endMs}")
		}
		return tf, nil
	}

	return nil, fmt.Errorf("unsupported filter kind %s", kind)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
