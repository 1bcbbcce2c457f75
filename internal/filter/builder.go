// Package filter composes analyst filter payloads into parameterized SQL
// and reports exactly which filters took effect.
package filter

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/radiowatch/radiowatch/internal/domain"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
	DefaultGeoLimit  = 5000
	MaxGeoLimit      = 50000

	kmPerDegree = 111.195
)

// Relative timeframe windows.
var relativeWindows = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
}

// IgnoredFilter records a filter that did not affect the query.
type IgnoredFilter struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Transparency reports how a payload was applied. ExplicitFiltersOnly is
// true iff every enabled filter was applied and nothing else was.
type Transparency struct {
	AppliedFilters      []string        `json:"appliedFilters"`
	IgnoredFilters      []IgnoredFilter `json:"ignoredFilters"`
	Warnings            []string        `json:"warnings"`
	EnabledCount        int             `json:"enabledCount"`
	ExplicitFiltersOnly bool            `json:"explicitFiltersOnly"`
}

// IgnoredKeys returns the keys of IgnoredFilters.
func (t Transparency) IgnoredKeys() []string {
	out := make([]string, len(t.IgnoredFilters))
	for i, f := range t.IgnoredFilters {
		out[i] = f.Key
	}
	return out
}

// Options carries the context a payload is interpreted in.
type Options struct {
	Home *domain.HomeLocation
	Now  time.Time

	// StaleDistances marks stored home distances as measured from a
	// previous home location. Distance filters are then reported as
	// ignored instead of matching against the old distances.
	StaleDistances bool
}

// staleDistanceReason is reported for distance filters over stale scores.
const staleDistanceReason = "stored distances were measured from a previous home location; recompute pending"

// Pagination bounds a list query.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Sort orders a list query.
type Sort struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

var sortColumns = map[string]string{
	"threatScore":      "COALESCE(s.final_score, 0)",
	"lastSeen":         "n.last_seen_ms",
	"firstSeen":        "n.first_seen_ms",
	"observationCount": "n.observation_count",
	"signal":           "COALESCE(n.best_signal_dbm, -999)",
	"ssid":             "n.ssid",
	"networkId":        "n.network_id",
	"uniqueDays":       "COALESCE(s.unique_days, 0)",
}

// SortFields returns the accepted sort fields.
func SortFields() []string {
	out := make([]string, 0, len(sortColumns))
	for k := range sortColumns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const networkFrom = `
FROM networks n
LEFT JOIN network_scores s ON s.network_id = n.network_id
LEFT JOIN network_tags t ON t.network_id = n.network_id`

// ListColumns is the column order of ListQuery rows.
const ListColumns = `n.network_id, n.ssid, n.radio_type, n.first_seen_ms, n.last_seen_ms,
	n.observation_count, n.best_signal_dbm, n.last_lat, n.last_lon,
	s.final_score, s.final_level, s.threat_type, s.rule_based_score, s.ml_score,
	s.candidate, s.transparency_error, s.unique_days, s.min_distance_from_home_km,
	t.tag_type, t.confidence`

// GeoColumns is the column order of GeospatialQuery rows.
const GeoColumns = `o.network_id, o.lat, o.lon, o.timestamp_ms, o.signal_dbm, o.radio_type,
	COALESCE(s.final_level, 'NONE')`

// Builder holds the WHERE clause compiled from one payload. It is
// immutable after New and safe to share.
type Builder struct {
	where        *whereBuilder
	transparency Transparency
}

// New compiles payload under enabled. A filter is applied only when it is
// enabled, present and valid; every other key is reported as ignored.
// An enabled distance-from-home filter with a value but no home location
// fails with domain.ErrHomeLocationRequired, whatever the value, rather
// than running unfiltered.
func New(payload Payload, enabled map[string]bool, opts Options) (*Builder, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	b := &Builder{
		where: newWhereBuilder(),
		transparency: Transparency{
			AppliedFilters: []string{},
			IgnoredFilters: []IgnoredFilter{},
			Warnings:       []string{},
		},
	}

	keys := make(map[string]struct{})
	for k := range payload.Known {
		keys[k] = struct{}{}
	}
	for k := range payload.Invalid {
		keys[k] = struct{}{}
	}
	for _, k := range payload.Unknown {
		keys[k] = struct{}{}
	}
	for k, on := range enabled {
		keys[k] = struct{}{}
		if on {
			b.transparency.EnabledCount++
		}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	conflicts := rangeConflicts(payload, enabled)

	for _, key := range sorted {
		if !enabled[key] {
			b.ignore(key, "filter not enabled")
			continue
		}
		if _, known := KindOf(key); !known {
			b.ignore(key, "unknown filter")
			b.warn("unknown filter %q ignored", key)
			continue
		}
		if isDistanceKey(key) && opts.Home == nil && hasValue(payload, key) {
			return nil, fmt.Errorf("filter %s: %w", key, domain.ErrHomeLocationRequired)
		}
		if reason, bad := payload.Invalid[key]; bad {
			b.ignore(key, "invalid value: "+reason)
			b.warn("filter %q ignored: %s", key, reason)
			continue
		}
		v, ok := payload.Known[key]
		if !ok {
			b.ignore(key, "enabled without a value")
			continue
		}
		if reason, ok := conflicts[key]; ok {
			b.ignore(key, reason)
			b.warn("filter %q ignored: %s", key, reason)
			continue
		}

		applied, reason, err := b.apply(key, v, opts)
		if err != nil {
			return nil, err
		}
		if !applied {
			b.ignore(key, reason)
			b.warn("filter %q ignored: %s", key, reason)
			continue
		}
		b.transparency.AppliedFilters = append(b.transparency.AppliedFilters, key)
	}

	b.transparency.ExplicitFiltersOnly = b.transparency.EnabledCount == len(b.transparency.AppliedFilters)
	return b, nil
}

// Transparency returns the applied/ignored report.
func (b *Builder) Transparency() Transparency {
	t := b.transparency
	t.AppliedFilters = append([]string{}, t.AppliedFilters...)
	t.IgnoredFilters = append([]IgnoredFilter{}, t.IgnoredFilters...)
	t.Warnings = append([]string{}, t.Warnings...)
	return t
}

// Where returns the compiled condition and arguments.
func (b *Builder) Where() (string, []any) {
	return b.where.clone().build()
}

// ListQuery builds a paginated listing. Sort fields are whitelisted and
// network_id always breaks ties so pages are stable.
func (b *Builder) ListQuery(p Pagination, s Sort) (domain.SQLQuery, error) {
	order, err := orderBy(s)
	if err != nil {
		return domain.SQLQuery{}, err
	}
	limit, offset, err := bounds(p)
	if err != nil {
		return domain.SQLQuery{}, err
	}

	where, args := b.Where()
	sql := "SELECT " + ListColumns + networkFrom +
		"\nWHERE " + where +
		"\nORDER BY " + order +
		"\nLIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	return domain.SQLQuery{SQL: sql, Args: args}, nil
}

// CountQuery counts the rows ListQuery would page over.
func (b *Builder) CountQuery() domain.SQLQuery {
	where, args := b.Where()
	return domain.SQLQuery{
		SQL:  "SELECT COUNT(*)" + networkFrom + "\nWHERE " + where,
		Args: args,
	}
}

// GeospatialQuery returns located observations of matching networks,
// optionally narrowed to selectedIDs. limit <= 0 selects the default.
func (b *Builder) GeospatialQuery(limit int, selectedIDs []string) domain.SQLQuery {
	switch {
	case limit <= 0:
		limit = DefaultGeoLimit
	case limit > MaxGeoLimit:
		limit = MaxGeoLimit
	}

	wb := b.where.clone()
	wb.addClause("o.timestamp_ms >= ?", domain.MinValidTimestampMs)
	wb.addClause("o.lat BETWEEN -90 AND 90 AND o.lon BETWEEN -180 AND 180")
	wb.addClause("NOT (o.lat = 0 AND o.lon = 0)")
	if len(selectedIDs) > 0 {
		ids := make([]string, len(selectedIDs))
		for i, id := range selectedIDs {
			ids[i] = domain.NormalizeNetworkID(id)
		}
		wb.addIn("o.network_id", ids)
	}
	where, args := wb.build()

	sql := "SELECT " + GeoColumns + `
FROM observations o
JOIN networks n ON n.network_id = o.network_id
LEFT JOIN network_scores s ON s.network_id = o.network_id
LEFT JOIN network_tags t ON t.network_id = o.network_id
WHERE ` + where + `
ORDER BY o.network_id, o.timestamp_ms
LIMIT ?`
	args = append(args, limit)
	return domain.SQLQuery{SQL: sql, Args: args}
}

func (b *Builder) ignore(key, reason string) {
	b.transparency.IgnoredFilters = append(b.transparency.IgnoredFilters, IgnoredFilter{Key: key, Reason: reason})
}

func (b *Builder) warn(format string, args ...any) {
	b.transparency.Warnings = append(b.transparency.Warnings, fmt.Sprintf(format, args...))
}

// apply validates v and adds its clause. It returns a reason when the
// value is out of range, and an error only for a missing home location.
func (b *Builder) apply(key string, v Value, opts Options) (bool, string, error) {
	wb := b.where

	switch val := v.(type) {
	case Text:
		s := strings.TrimSpace(val.V)
		if s == "" {
			return false, "empty value", nil
		}
		switch key {
		case KeySSID:
			wb.addClause(`LOWER(n.ssid) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(s))+"%")
		case KeyBSSID:
			wb.addClause(`n.network_id LIKE ? ESCAPE '\'`, escapeLike(domain.NormalizeNetworkID(s))+"%")
		}
		return true, "", nil

	case TextSet:
		values, bad := normalizeSet(key, val.V)
		if len(bad) > 0 {
			return false, fmt.Sprintf("unrecognized values %v", bad), nil
		}
		if len(values) == 0 {
			return false, "empty set", nil
		}
		switch key {
		case KeyRadioTypes:
			wb.addIn("n.radio_type", values)
		case KeyThreatLevels:
			wb.addIn("COALESCE(s.final_level, 'NONE')", values)
		case KeyTagTypes:
			wb.addIn("t.tag_type", values)
		}
		return true, "", nil

	case Number:
		if reason := checkNumber(key, val.V); reason != "" {
			return false, reason, nil
		}
		if isDistanceKey(key) {
			if opts.Home == nil {
				return false, "", fmt.Errorf("filter %s: %w", key, domain.ErrHomeLocationRequired)
			}
			if opts.StaleDistances {
				return false, staleDistanceReason, nil
			}
		}
		column, op := numberColumn(key)
		wb.addClause(column+" "+op+" ?", val.V)
		return true, "", nil

	case Flag:
		if !val.V {
			return false, "flag is false; no restriction requested", nil
		}
		switch key {
		case KeyTransparencyErrorsOnly:
			wb.addClause("s.transparency_error = 1")
		case KeyCandidatesOnly:
			wb.addClause("s.candidate = 1")
		}
		return true, "", nil

	case BoundingBox:
		if reason := checkBoundingBox(val); reason != "" {
			return false, reason, nil
		}
		lon := "g.lon BETWEEN ? AND ?"
		if val.West > val.East {
			lon = "(g.lon >= ? OR g.lon <= ?)"
		}
		wb.addClause(observedWhere("g.lat BETWEEN ? AND ? AND "+lon),
			val.South, val.North, val.West, val.East)
		return true, "", nil

	case Radius:
		if reason := checkRadius(val); reason != "" {
			return false, reason, nil
		}
		// Equirectangular approximation in degrees, portable across drivers.
		k := math.Cos(val.Lat * math.Pi / 180)
		maxDeg := val.RadiusM / 1000 / kmPerDegree
		wb.addClause(
			observedWhere("((g.lat - ?) * (g.lat - ?) + (g.lon - ?) * (g.lon - ?) * ?) <= ?"),
			val.Lat, val.Lat, val.Lon, val.Lon, k*k, maxDeg*maxDeg,
		)
		return true, "", nil

	case Timeframe:
		start, end, reason := timeframeBounds(val, opts.Now)
		if reason != "" {
			return false, reason, nil
		}
		if start != nil {
			wb.addClause("n.last_seen_ms >= ?", *start)
		}
		if end != nil {
			wb.addClause("n.last_seen_ms <= ?", *end)
		}
		return true, "", nil
	}

	return false, "unsupported value", nil
}

// observedWhere matches networks with at least one observation satisfying
// cond over the alias g, so a network that passed through an area matches
// even after it moved on.
func observedWhere(cond string) string {
	return "EXISTS (SELECT 1 FROM observations g WHERE g.network_id = n.network_id AND " + cond + ")"
}

func isDistanceKey(key string) bool {
	return key == KeyDistanceFromHomeMin || key == KeyDistanceFromHomeMax
}

// hasValue reports whether the payload carries key, decodable or not.
func hasValue(p Payload, key string) bool {
	if _, ok := p.Known[key]; ok {
		return true
	}
	_, ok := p.Invalid[key]
	return ok
}

func normalizeSet(key string, in []string) (values, bad []string) {
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		var norm string
		switch key {
		case KeyRadioTypes:
			rt := domain.ParseRadioType(s)
			if rt == domain.RadioUnknown && !strings.EqualFold(s, string(domain.RadioUnknown)) {
				bad = append(bad, s)
				continue
			}
			norm = string(rt)
		case KeyThreatLevels:
			l := domain.ThreatLevel(strings.ToUpper(s))
			if l == "MEDIUM" {
				l = domain.LevelMed
			}
			if !l.Valid() {
				bad = append(bad, s)
				continue
			}
			norm = string(l)
		case KeyTagTypes:
			tt := domain.TagType(strings.ToUpper(s))
			if !tt.Valid() {
				bad = append(bad, s)
				continue
			}
			norm = string(tt)
		}
		if !seen[norm] {
			seen[norm] = true
			values = append(values, norm)
		}
	}
	return values, bad
}

func numberColumn(key string) (string, string) {
	switch key {
	case KeyThreatScoreMin:
		return "COALESCE(s.final_score, 0)", ">="
	case KeyThreatScoreMax:
		return "COALESCE(s.final_score, 0)", "<="
	case KeyObservationCountMin:
		return "n.observation_count", ">="
	case KeyObservationCountMax:
		return "n.observation_count", "<="
	case KeySignalMin:
		return "n.best_signal_dbm", ">="
	case KeySignalMax:
		return "n.best_signal_dbm", "<="
	case KeyUniqueDaysMin:
		return "COALESCE(s.unique_days, 0)", ">="
	case KeyDistanceFromHomeMin:
		return "s.min_distance_from_home_km", ">="
	case KeyDistanceFromHomeMax:
		return "s.min_distance_from_home_km", "<="
	}
	return "", ""
}

func checkNumber(key string, v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "value is not finite"
	}
	switch key {
	case KeyThreatScoreMin, KeyThreatScoreMax:
		if v < 0 || v > 100 {
			return "threat score must be between 0 and 100"
		}
	case KeySignalMin, KeySignalMax:
		if v < -150 || v > 0 {
			return "signal must be between -150 and 0 dBm"
		}
	default:
		if v < 0 {
			return "value must not be negative"
		}
	}
	return ""
}

// rangePairs lists min/max keys validated together.
var rangePairs = [][2]string{
	{KeyThreatScoreMin, KeyThreatScoreMax},
	{KeyObservationCountMin, KeyObservationCountMax},
	{KeySignalMin, KeySignalMax},
	{KeyDistanceFromHomeMin, KeyDistanceFromHomeMax},
}

// rangeConflicts finds enabled min/max pairs with min > max. Both sides
// are ignored since neither can be honored alone without changing intent.
func rangeConflicts(p Payload, enabled map[string]bool) map[string]string {
	out := make(map[string]string)
	for _, pair := range rangePairs {
		if !enabled[pair[0]] || !enabled[pair[1]] {
			continue
		}
		lo, ok1 := p.Known[pair[0]].(Number)
		hi, ok2 := p.Known[pair[1]].(Number)
		if !ok1 || !ok2 || lo.V <= hi.V {
			continue
		}
		reason := fmt.Sprintf("%s (%g) is greater than %s (%g)", pair[0], lo.V, pair[1], hi.V)
		out[pair[0]] = reason
		out[pair[1]] = reason
	}
	return out
}

func checkBoundingBox(bb BoundingBox) string {
	for _, lat := range []float64{bb.North, bb.South} {
		if math.IsNaN(lat) || lat < -90 || lat > 90 {
			return "latitude must be between -90 and 90"
		}
	}
	for _, lon := range []float64{bb.East, bb.West} {
		if math.IsNaN(lon) || lon < -180 || lon > 180 {
			return "longitude must be between -180 and 180"
		}
	}
	if bb.South > bb.North {
		return "south must not exceed north"
	}
	return ""
}

func checkRadius(r Radius) string {
	if !domain.ValidCoordinates(r.Lat, r.Lon) {
		return "center must have latitude in [-90, 90] and longitude in [-180, 180]"
	}
	if math.IsNaN(r.RadiusM) || math.IsInf(r.RadiusM, 0) || r.RadiusM <= 0 {
		return "radius must be greater than 0"
	}
	return ""
}

func timeframeBounds(tf Timeframe, now time.Time) (start, end *int64, reason string) {
	switch strings.ToLower(tf.Type) {
	case "relative", "":
		window, ok := relativeWindows[tf.RelativeWindow]
		if !ok {
			return nil, nil, fmt.Sprintf("unknown relative window %q", tf.RelativeWindow)
		}
		s := now.Add(-window).UnixMilli()
		return &s, nil, ""
	case "absolute":
		if tf.StartMs == nil && tf.EndMs == nil {
			return nil, nil, "absolute timeframe requires startMs or endMs"
		}
		if tf.StartMs != nil && *tf.StartMs < domain.MinValidTimestampMs {
			return nil, nil, "startMs is before the minimum valid timestamp"
		}
		if tf.StartMs != nil && tf.EndMs != nil && *tf.StartMs > *tf.EndMs {
			return nil, nil, "startMs is after endMs"
		}
		return tf.StartMs, tf.EndMs, ""
	}
	return nil, nil, fmt.Sprintf("unknown timeframe type %q", tf.Type)
}

func orderBy(s Sort) (string, error) {
	field := s.Field
	if field == "" {
		field = "threatScore"
	}
	column, ok := sortColumns[field]
	if !ok {
		return "", fmt.Errorf("%w: unsupported sort field %q, expected one of %s",
			domain.ErrInvalidInput, s.Field, strings.Join(SortFields(), ", "))
	}

	dir := strings.ToUpper(s.Direction)
	switch dir {
	case "":
		dir = "DESC"
		if field == "ssid" || field == "networkId" {
			dir = "ASC"
		}
	case "ASC", "DESC":
	default:
		return "", fmt.Errorf("%w: sort direction must be asc or desc", domain.ErrInvalidInput)
	}

	if field == "networkId" {
		return column + " " + dir, nil
	}
	return column + " " + dir + ", n.network_id ASC", nil
}

func bounds(p Pagination) (int, int, error) {
	if p.Offset < 0 {
		return 0, 0, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidInput)
	}
	limit := p.Limit
	switch {
	case limit < 0:
		return 0, 0, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidInput)
	case limit == 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return limit, p.Offset, nil
}
