package filter

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiowatch/radiowatch/internal/domain"
)

var (
	testHome = &domain.HomeLocation{Lat: 40, Lon: -74, RadiusM: 100}
	testNow  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

func payload(t *testing.T, raw string) Payload {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return ParsePayload(m)
}

func build(t *testing.T, raw string, enabled map[string]bool, home *domain.HomeLocation) *Builder {
	t.Helper()
	b, err := New(payload(t, raw), enabled, Options{Home: home, Now: testNow})
	require.NoError(t, err)
	return b
}

func assertPlaceholders(t *testing.T, q domain.SQLQuery) {
	t.Helper()
	assert.Equal(t, strings.Count(q.SQL, "?"), len(q.Args), q.SQL)
}

func TestParsePayload(t *testing.T) {
	p := payload(t, `{
		"ssid": "home",
		"radioTypes": ["WiFi", "BLE"],
		"threatScoreMin": "40",
		"signalMax": -30,
		"candidatesOnly": true,
		"boundingBox": {"north": 41, "south": 40, "east": -73, "west": -74},
		"radiusFilter": {"lat": 40, "lon": -74},
		"observationCountMin": {"oops": 1},
		"favoriteColor": "blue",
		"bssid": null
	}`)

	assert.Equal(t, Text{V: "home"}, p.Known[KeySSID])
	assert.Equal(t, TextSet{V: []string{"WiFi", "BLE"}}, p.Known[KeyRadioTypes])
	assert.Equal(t, Number{V: 40}, p.Known[KeyThreatScoreMin])
	assert.Equal(t, Number{V: -30}, p.Known[KeySignalMax])
	assert.Equal(t, Flag{V: true}, p.Known[KeyCandidatesOnly])
	assert.Equal(t, BoundingBox{North: 41, South: 40, East: -73, West: -74}, p.Known[KeyBoundingBox])

	assert.Contains(t, p.Invalid, KeyRadiusFilter)
	assert.Contains(t, p.Invalid, KeyObservationCountMin)
	assert.Contains(t, p.Invalid, KeyBSSID)
	assert.Equal(t, []string{"favoriteColor"}, p.Unknown)
}

func TestDisabledFilterNeverApplies(t *testing.T) {
	b := build(t, `{"ssid": "test"}`, map[string]bool{"ssid": false}, nil)
	tr := b.Transparency()

	assert.Empty(t, tr.AppliedFilters)
	assert.Equal(t, []string{"ssid"}, tr.IgnoredKeys())
	assert.Equal(t, 0, tr.EnabledCount)
	assert.True(t, tr.ExplicitFiltersOnly)

	where, args := b.Where()
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)
}

func TestDistanceFilterRequiresHome(t *testing.T) {
	_, err := New(payload(t, `{"distanceFromHomeMax": 5}`), map[string]bool{"distanceFromHomeMax": true}, Options{Now: testNow})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHomeLocationRequired)

	t.Run("WithHome", func(t *testing.T) {
		b := build(t, `{"distanceFromHomeMax": 5}`, map[string]bool{"distanceFromHomeMax": true}, testHome)
		assert.Equal(t, []string{"distanceFromHomeMax"}, b.Transparency().AppliedFilters)
		where, args := b.Where()
		assert.Equal(t, "s.min_distance_from_home_km <= ?", where)
		assert.Equal(t, []any{5.0}, args)
	})

	t.Run("DisabledWithoutHomeIsFine", func(t *testing.T) {
		b := build(t, `{"distanceFromHomeMax": 5}`, map[string]bool{}, nil)
		assert.Empty(t, b.Transparency().AppliedFilters)
	})

	tests := []struct {
		name    string
		raw     string
		enabled map[string]bool
	}{
		{"OutOfRange", `{"distanceFromHomeMax": -3}`, map[string]bool{"distanceFromHomeMax": true}},
		{"Undecodable", `{"distanceFromHomeMax": "far"}`, map[string]bool{"distanceFromHomeMax": true}},
		{"Conflicting", `{"distanceFromHomeMin": 10, "distanceFromHomeMax": 2}`,
			map[string]bool{"distanceFromHomeMin": true, "distanceFromHomeMax": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name+"WithoutHomeFails", func(t *testing.T) {
			_, err := New(payload(t, tt.raw), tt.enabled, Options{Now: testNow})
			assert.ErrorIs(t, err, domain.ErrHomeLocationRequired)
		})
	}
}

func TestStaleDistancesNotApplied(t *testing.T) {
	b, err := New(payload(t, `{"distanceFromHomeMax": 5, "ssid": "cafe"}`),
		map[string]bool{"distanceFromHomeMax": true, "ssid": true},
		Options{Home: testHome, Now: testNow, StaleDistances: true})
	require.NoError(t, err)

	tr := b.Transparency()
	assert.Equal(t, []string{"ssid"}, tr.AppliedFilters)
	require.Len(t, tr.IgnoredFilters, 1)
	assert.Equal(t, "distanceFromHomeMax", tr.IgnoredFilters[0].Key)
	assert.Contains(t, tr.IgnoredFilters[0].Reason, "previous home location")
	assert.Len(t, tr.Warnings, 1)
	assert.False(t, tr.ExplicitFiltersOnly)

	where, _ := b.Where()
	assert.NotContains(t, where, "min_distance_from_home_km")
}

func TestAppliedFilters(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		key     string
		clause  string
		args    []any
		ignored bool
	}{
		{"SSIDLike", `{"ssid": "Coffee_Shop"}`, KeySSID, `LOWER(n.ssid) LIKE ? ESCAPE '\'`, []any{`%coffee\_shop%`}, false},
		{"BSSIDPrefix", `{"bssid": "aa:bb"}`, KeyBSSID, `n.network_id LIKE ? ESCAPE '\'`, []any{"AA:BB%"}, false},
		{"RadioTypes", `{"radioTypes": ["wifi", "LTE", "wifi"]}`, KeyRadioTypes, "n.radio_type IN (?, ?)", []any{"WiFi", "LTE"}, false},
		{"ThreatLevels", `{"threatLevels": ["high", "medium"]}`, KeyThreatLevels, "COALESCE(s.final_level, 'NONE') IN (?, ?)", []any{"HIGH", "MED"}, false},
		{"TagTypes", `{"tagTypes": ["THREAT"]}`, KeyTagTypes, "t.tag_type IN (?)", []any{"THREAT"}, false},
		{"ScoreMin", `{"threatScoreMin": 60}`, KeyThreatScoreMin, "COALESCE(s.final_score, 0) >= ?", []any{60.0}, false},
		{"ObservationMax", `{"observationCountMax": 10}`, KeyObservationCountMax, "n.observation_count <= ?", []any{10.0}, false},
		{"SignalMin", `{"signalMin": -80}`, KeySignalMin, "n.best_signal_dbm >= ?", []any{-80.0}, false},
		{"UniqueDays", `{"uniqueDaysMin": 3}`, KeyUniqueDaysMin, "COALESCE(s.unique_days, 0) >= ?", []any{3.0}, false},
		{"TransparencyErrors", `{"transparencyErrorsOnly": true}`, KeyTransparencyErrorsOnly, "s.transparency_error = 1", []any{}, false},
		{"Candidates", `{"candidatesOnly": true}`, KeyCandidatesOnly, "s.candidate = 1", []any{}, false},
		{"FlagFalse", `{"candidatesOnly": false}`, KeyCandidatesOnly, "", nil, true},
		{"ScoreOutOfRange", `{"threatScoreMin": 140}`, KeyThreatScoreMin, "", nil, true},
		{"SignalPositive", `{"signalMax": 10}`, KeySignalMax, "", nil, true},
		{"NegativeCount", `{"observationCountMin": -1}`, KeyObservationCountMin, "", nil, true},
		{"EmptySSID", `{"ssid": "   "}`, KeySSID, "", nil, true},
		{"BadRadio", `{"radioTypes": ["WiFi", "Zigbee"]}`, KeyRadioTypes, "", nil, true},
		{"EmptySet", `{"tagTypes": []}`, KeyTagTypes, "", nil, true},
		{"InvalidJSONShape", `{"threatScoreMin": "high"}`, KeyThreatScoreMin, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := build(t, tt.raw, map[string]bool{tt.key: true}, testHome)
			tr := b.Transparency()
			where, args := b.Where()

			if tt.ignored {
				assert.Empty(t, tr.AppliedFilters)
				assert.Equal(t, []string{tt.key}, tr.IgnoredKeys())
				assert.NotEmpty(t, tr.IgnoredFilters[0].Reason)
				assert.False(t, tr.ExplicitFiltersOnly)
				assert.Equal(t, "1=1", where)
				return
			}
			assert.Equal(t, []string{tt.key}, tr.AppliedFilters)
			assert.True(t, tr.ExplicitFiltersOnly)
			assert.Equal(t, tt.clause, where)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestGeoFilters(t *testing.T) {
	t.Run("BoundingBox", func(t *testing.T) {
		b := build(t, `{"boundingBox": {"north": 41, "south": 40, "east": -73, "west": -74}}`, map[string]bool{"boundingBox": true}, nil)
		where, args := b.Where()
		assert.Equal(t, "EXISTS (SELECT 1 FROM observations g WHERE g.network_id = n.network_id"+
			" AND g.lat BETWEEN ? AND ? AND g.lon BETWEEN ? AND ?)", where)
		assert.Equal(t, []any{40.0, 41.0, -74.0, -73.0}, args)
	})

	t.Run("BoundingBoxAntimeridian", func(t *testing.T) {
		b := build(t, `{"boundingBox": {"north": 10, "south": -10, "east": -170, "west": 170}}`, map[string]bool{"boundingBox": true}, nil)
		where, _ := b.Where()
		assert.Contains(t, where, "(g.lon >= ? OR g.lon <= ?)")
	})

	t.Run("BoundingBoxOutOfRange", func(t *testing.T) {
		b := build(t, `{"boundingBox": {"north": 95, "south": 40, "east": -73, "west": -74}, "ssid": "x"}`,
			map[string]bool{"boundingBox": true, "ssid": true}, nil)
		tr := b.Transparency()
		assert.Equal(t, []string{"ssid"}, tr.AppliedFilters)
		assert.Equal(t, []string{"boundingBox"}, tr.IgnoredKeys())
		assert.Len(t, tr.Warnings, 1)
		assert.False(t, tr.ExplicitFiltersOnly)
	})

	t.Run("Radius", func(t *testing.T) {
		b := build(t, `{"radiusFilter": {"lat": 40, "lon": -74, "radiusM": 1000}}`, map[string]bool{"radiusFilter": true}, nil)
		where, args := b.Where()
		assert.Contains(t, where, "EXISTS (SELECT 1 FROM observations g WHERE g.network_id = n.network_id")
		assert.Len(t, args, 6)
	})

	t.Run("ZeroRadius", func(t *testing.T) {
		b := build(t, `{"radiusFilter": {"lat": 40, "lon": -74, "radiusM": 0}}`, map[string]bool{"radiusFilter": true}, nil)
		assert.Equal(t, []string{"radiusFilter"}, b.Transparency().IgnoredKeys())
	})
}

func TestTimeframe(t *testing.T) {
	t.Run("Relative", func(t *testing.T) {
		b := build(t, `{"timeframe": {"type": "relative", "relativeWindow": "7d"}}`, map[string]bool{"timeframe": true}, nil)
		where, args := b.Where()
		assert.Equal(t, "n.last_seen_ms >= ?", where)
		assert.Equal(t, []any{testNow.Add(-7 * 24 * time.Hour).UnixMilli()}, args)
	})

	t.Run("Absolute", func(t *testing.T) {
		b := build(t, `{"timeframe": {"type": "absolute", "startMs": 1700000000000, "endMs": 1710000000000}}`, map[string]bool{"timeframe": true}, nil)
		where, args := b.Where()
		assert.Equal(t, "n.last_seen_ms >= ? AND n.last_seen_ms <= ?", where)
		assert.Equal(t, []any{int64(1700000000000), int64(1710000000000)}, args)
	})

	t.Run("Inverted", func(t *testing.T) {
		b := build(t, `{"timeframe": {"type": "absolute", "startMs": 1710000000000, "endMs": 1700000000000}}`, map[string]bool{"timeframe": true}, nil)
		assert.Equal(t, []string{"timeframe"}, b.Transparency().IgnoredKeys())
	})

	t.Run("UnknownWindow", func(t *testing.T) {
		b := build(t, `{"timeframe": {"type": "relative", "relativeWindow": "fortnight"}}`, map[string]bool{"timeframe": true}, nil)
		assert.Equal(t, []string{"timeframe"}, b.Transparency().IgnoredKeys())
	})
}

func TestRangeConflict(t *testing.T) {
	b := build(t, `{"threatScoreMin": 80, "threatScoreMax": 20}`,
		map[string]bool{"threatScoreMin": true, "threatScoreMax": true}, nil)
	tr := b.Transparency()
	assert.Empty(t, tr.AppliedFilters)
	assert.ElementsMatch(t, []string{"threatScoreMin", "threatScoreMax"}, tr.IgnoredKeys())
	assert.Len(t, tr.Warnings, 2)
}

func TestEnabledWithoutValue(t *testing.T) {
	b := build(t, `{}`, map[string]bool{"ssid": true}, nil)
	tr := b.Transparency()
	assert.Equal(t, 1, tr.EnabledCount)
	assert.Empty(t, tr.AppliedFilters)
	assert.Equal(t, "enabled without a value", tr.IgnoredFilters[0].Reason)
	assert.False(t, tr.ExplicitFiltersOnly)
}

func TestUnknownKeyReported(t *testing.T) {
	b := build(t, `{"favoriteColor": "blue"}`, map[string]bool{"favoriteColor": true}, nil)
	tr := b.Transparency()
	assert.Equal(t, []string{"favoriteColor"}, tr.IgnoredKeys())
	assert.False(t, tr.ExplicitFiltersOnly)
}

// For random payload/enabled pairs, applied is exactly the set of keys that
// are enabled and carry a valid value, and nothing is silently dropped.
func TestNoSilentFilters(t *testing.T) {
	valid := map[string]string{
		KeySSID:                   `"net"`,
		KeyBSSID:                  `"AA:BB"`,
		KeyRadioTypes:             `["WiFi"]`,
		KeyThreatLevels:           `["HIGH"]`,
		KeyTagTypes:               `["SUSPECT"]`,
		KeyThreatScoreMin:         `10`,
		KeyThreatScoreMax:         `90`,
		KeyObservationCountMin:    `1`,
		KeyObservationCountMax:    `100`,
		KeySignalMin:              `-90`,
		KeySignalMax:              `-10`,
		KeyUniqueDaysMin:          `2`,
		KeyTimeframe:              `{"type": "relative", "relativeWindow": "30d"}`,
		KeyDistanceFromHomeMin:    `0.1`,
		KeyDistanceFromHomeMax:    `50`,
		KeyBoundingBox:            `{"north": 1, "south": 0, "east": 1, "west": 0}`,
		KeyRadiusFilter:           `{"lat": 1, "lon": 1, "radiusM": 10}`,
		KeyTransparencyErrorsOnly: `true`,
		KeyCandidatesOnly:         `true`,
	}
	invalid := `{"not": "valid"}`

	rng := rand.New(rand.NewSource(42))
	keys := Keys()

	for i := 0; i < 200; i++ {
		raw := map[string]json.RawMessage{}
		enabled := map[string]bool{}
		wantApplied := []string{}

		for _, k := range keys {
			present := rng.Intn(3)
			on := rng.Intn(2) == 0
			if rng.Intn(4) > 0 {
				enabled[k] = on
			}
			switch present {
			case 0:
			case 1:
				raw[k] = json.RawMessage(valid[k])
				if enabled[k] {
					wantApplied = append(wantApplied, k)
				}
			case 2:
				raw[k] = json.RawMessage(invalid)
			}
		}
		sort.Strings(wantApplied)

		b, err := New(ParsePayload(raw), enabled, Options{Home: testHome, Now: testNow})
		require.NoError(t, err)
		tr := b.Transparency()

		assert.Equal(t, wantApplied, tr.AppliedFilters, "iteration %d", i)

		seen := map[string]bool{}
		for _, k := range tr.AppliedFilters {
			seen[k] = true
		}
		for _, ig := range tr.IgnoredFilters {
			assert.False(t, seen[ig.Key], "key %s both applied and ignored", ig.Key)
			seen[ig.Key] = true
		}
		for k := range raw {
			assert.True(t, seen[k], fmt.Sprintf("payload key %s unreported", k))
		}
		for k := range enabled {
			assert.True(t, seen[k], fmt.Sprintf("enabled key %s unreported", k))
		}

		enabledCount := 0
		for _, on := range enabled {
			if on {
				enabledCount++
			}
		}
		assert.Equal(t, enabledCount == len(wantApplied), tr.ExplicitFiltersOnly)
		assertPlaceholders(t, b.CountQuery())
	}
}

func TestListQuery(t *testing.T) {
	b := build(t, `{"ssid": "cafe", "threatScoreMin": 40}`, map[string]bool{"ssid": true, "threatScoreMin": true}, nil)

	t.Run("Defaults", func(t *testing.T) {
		q, err := b.ListQuery(Pagination{}, Sort{})
		require.NoError(t, err)
		assertPlaceholders(t, q)
		assert.Contains(t, q.SQL, "ORDER BY COALESCE(s.final_score, 0) DESC, n.network_id ASC")
		assert.Equal(t, DefaultListLimit, q.Args[len(q.Args)-2])
		assert.Equal(t, 0, q.Args[len(q.Args)-1])
	})

	t.Run("ClampsLimit", func(t *testing.T) {
		q, err := b.ListQuery(Pagination{Limit: 1_000_000, Offset: 20}, Sort{Field: "lastSeen", Direction: "asc"})
		require.NoError(t, err)
		assert.Contains(t, q.SQL, "ORDER BY n.last_seen_ms ASC, n.network_id ASC")
		assert.Equal(t, MaxListLimit, q.Args[len(q.Args)-2])
		assert.Equal(t, 20, q.Args[len(q.Args)-1])
	})

	t.Run("RejectsUnknownSort", func(t *testing.T) {
		_, err := b.ListQuery(Pagination{}, Sort{Field: "n.ssid; DROP TABLE networks"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("RejectsBadDirection", func(t *testing.T) {
		_, err := b.ListQuery(Pagination{}, Sort{Field: "ssid", Direction: "sideways"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("RejectsNegativeOffset", func(t *testing.T) {
		_, err := b.ListQuery(Pagination{Offset: -1}, Sort{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestCountAndGeoQueries(t *testing.T) {
	b := build(t, `{"candidatesOnly": true}`, map[string]bool{"candidatesOnly": true}, nil)

	q := b.CountQuery()
	assertPlaceholders(t, q)
	assert.Contains(t, q.SQL, "SELECT COUNT(*)")
	assert.Contains(t, q.SQL, "s.candidate = 1")

	g := b.GeospatialQuery(0, []string{"aa:bb", "CC:DD"})
	assertPlaceholders(t, g)
	assert.Contains(t, g.SQL, "o.network_id IN (?, ?)")
	assert.Equal(t, DefaultGeoLimit, g.Args[len(g.Args)-1])
	assert.Contains(t, g.Args, "AA:BB")

	g = b.GeospatialQuery(MaxGeoLimit*2, nil)
	assert.Equal(t, MaxGeoLimit, g.Args[len(g.Args)-1])
	assert.NotContains(t, g.SQL, "o.network_id IN")

	// The builder's own clause list is not mutated by query building.
	where, _ := b.Where()
	assert.Equal(t, "s.candidate = 1", where)
}
