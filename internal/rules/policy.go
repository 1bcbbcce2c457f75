package rules

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// CandidatePolicy decides whether a scored network belongs to the
// candidate threat set. It is a compiled CEL boolean expression over the
// network's radio type and features, applied by the caller after scoring.
type CandidatePolicy struct {
	expression string
	program    cel.Program
}

// NewCandidatePolicy compiles expr. An empty expression selects
// domain.DefaultCandidatePolicy.
func NewCandidatePolicy(expr string) (*CandidatePolicy, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = domain.DefaultCandidatePolicy
	}

	env, err := cel.NewEnv(
		cel.Variable("radio_type", cel.StringType),
		cel.Variable("observation_count", cel.IntType),
		cel.Variable("located_count", cel.IntType),
		cel.Variable("unique_days_observed", cel.IntType),
		cel.Variable("unique_locations_observed", cel.IntType),
		cel.Variable("min_distance_from_home_km", cel.DoubleType),
		cel.Variable("max_distance_from_home_km", cel.DoubleType),
		cel.Variable("distance_range_km", cel.DoubleType),
		cel.Variable("seen_at_home", cel.BoolType),
		cel.Variable("seen_away_from_home", cel.BoolType),
		cel.Variable("max_speed_kmh", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile candidate policy: %v", domain.ErrInvalidInput, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: candidate policy must return bool, got %s", domain.ErrInvalidInput, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for candidate policy: %w", err)
	}

	return &CandidatePolicy{expression: expr, program: program}, nil
}

// Expression returns the compiled source expression.
func (p *CandidatePolicy) Expression() string {
	return p.expression
}

// Evaluate reports whether the network is a candidate. When it is not,
// the returned reason explains the exclusion.
func (p *CandidatePolicy) Evaluate(radio domain.RadioType, fv *domain.FeatureVector) (bool, string, error) {
	if radio == "" {
		radio = domain.RadioUnknown
	}

	out, _, err := p.program.Eval(map[string]any{
		"radio_type":                string(radio),
		"observation_count":         int64(fv.ObservationCount),
		"located_count":             int64(fv.LocatedCount),
		"unique_days_observed":      int64(fv.UniqueDaysObserved),
		"unique_locations_observed": int64(fv.UniqueLocationsObserved),
		"min_distance_from_home_km": fv.MinDistanceFromHomeKm,
		"max_distance_from_home_km": fv.MaxDistanceFromHomeKm,
		"distance_range_km":         fv.DistanceRangeKm,
		"seen_at_home":              fv.SeenAtHome,
		"seen_away_from_home":       fv.SeenAwayFromHome,
		"max_speed_kmh":             fv.MaxSpeedKmh,
	})
	if err != nil {
		return false, "", fmt.Errorf("candidate policy evaluation: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, "", fmt.Errorf("candidate policy returned %s, want bool", out.Type().TypeName())
	}
	if b {
		return true, "", nil
	}

	return false, fmt.Sprintf("excluded by candidate policy (radio_type=%s, distance_range_km=%.3f)", radio, fv.DistanceRangeKm), nil
}
