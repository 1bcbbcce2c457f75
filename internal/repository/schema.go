package repository

// Schema definitions for radiowatch.
// Compatible with both SQLite and PostgreSQL. Booleans are stored as
// INTEGER 0/1 and JSON documents as TEXT.

const schemaObservations = `
CREATE TABLE IF NOT EXISTS observations (
    network_id TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    timestamp_ms BIGINT NOT NULL,
    signal_dbm DOUBLE PRECISION,
    radio_type TEXT NOT NULL,
    ssid TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (network_id, timestamp_ms, lat, lon)
);

CREATE INDEX IF NOT EXISTS idx_observations_timestamp ON observations(timestamp_ms);
`

const schemaNetworks = `
CREATE TABLE IF NOT EXISTS networks (
    network_id TEXT PRIMARY KEY,
    ssid TEXT NOT NULL DEFAULT '',
    radio_type TEXT NOT NULL,
    first_seen_ms BIGINT NOT NULL,
    last_seen_ms BIGINT NOT NULL,
    observation_count BIGINT NOT NULL,
    best_signal_dbm DOUBLE PRECISION,
    last_lat DOUBLE PRECISION,
    last_lon DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_networks_last_seen ON networks(last_seen_ms);
CREATE INDEX IF NOT EXISTS idx_networks_radio_type ON networks(radio_type);
`

// schemaScores holds one row per network, replaced whole on recompute.
const schemaScores = `
CREATE TABLE IF NOT EXISTS network_scores (
    network_id TEXT PRIMARY KEY,
    rule_based_score DOUBLE PRECISION NOT NULL,
    rule_signals TEXT NOT NULL,
    signal_count INTEGER NOT NULL,
    ml_score DOUBLE PRECISION,
    ml_probability DOUBLE PRECISION,
    ml_model_version TEXT NOT NULL DEFAULT '',
    ml_status TEXT NOT NULL,
    computed_score DOUBLE PRECISION NOT NULL,
    final_score DOUBLE PRECISION NOT NULL,
    final_level TEXT NOT NULL,
    threat_type TEXT NOT NULL DEFAULT '',
    stage TEXT NOT NULL,
    applied_tag TEXT NOT NULL DEFAULT '',
    candidate INTEGER NOT NULL DEFAULT 1,
    exclusion_reason TEXT NOT NULL DEFAULT '',
    transparency_error INTEGER NOT NULL DEFAULT 0,
    unique_days INTEGER NOT NULL,
    min_distance_from_home_km DOUBLE PRECISION NOT NULL,
    max_distance_from_home_km DOUBLE PRECISION NOT NULL,
    distance_range_km DOUBLE PRECISION NOT NULL,
    features TEXT NOT NULL,
    warnings TEXT NOT NULL,
    home_key TEXT NOT NULL DEFAULT '',
    scored_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_network_scores_final ON network_scores(final_score);
CREATE INDEX IF NOT EXISTS idx_network_scores_level ON network_scores(final_level);
`

const schemaTags = `
CREATE TABLE IF NOT EXISTS network_tags (
    network_id TEXT PRIMARY KEY,
    tag_type TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    notes TEXT NOT NULL DEFAULT '',
    tagged_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_network_tags_type ON network_tags(tag_type);
`

const schemaSettings = `
CREATE TABLE IF NOT EXISTS home_location (
    id INTEGER PRIMARY KEY,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    radius_m DOUBLE PRECISION NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS ml_models (
    model_type TEXT PRIMARY KEY,
    coefficients TEXT NOT NULL,
    intercept DOUBLE PRECISION NOT NULL,
    feature_names TEXT NOT NULL,
    version TEXT NOT NULL,
    trained_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaObservations,
		schemaNetworks,
		schemaScores,
		schemaTags,
		schemaSettings,
	}
}
