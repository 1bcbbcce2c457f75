// Package linear scores feature vectors with an already-trained logistic
// regression model.
package linear

import (
	"fmt"
	"math"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// Result is the output of a model evaluation.
type Result struct {
	Score        float64  `json:"score"`
	Probability  float64  `json:"probability"`
	ModelVersion string   `json:"modelVersion"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Score evaluates the model on fv.
//
//	z = intercept + Σ coefficients[i] * fv[featureNames[i]]
//	p = 1 / (1 + e^-z)
//
// Unknown feature names contribute nothing. A length mismatch between
// coefficients and names uses the shorter list. Non-finite coefficients
// are skipped. Each of these adds a warning rather than failing, since a
// model may predate a feature. A nil cfg returns domain.ErrModelNotTrained.
func Score(fv *domain.FeatureVector, cfg *domain.ModelConfig) (Result, error) {
	if cfg == nil {
		return Result{}, domain.ErrModelNotTrained
	}

	res := Result{ModelVersion: cfg.Version}

	n := len(cfg.Coefficients)
	if len(cfg.FeatureNames) != n {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"model has %d coefficients but %d feature names; using the first %d",
			len(cfg.Coefficients), len(cfg.FeatureNames), min(n, len(cfg.FeatureNames))))
		n = min(n, len(cfg.FeatureNames))
	}

	z := cfg.Intercept
	if !isFinite(z) {
		res.Warnings = append(res.Warnings, "model intercept is not finite; treated as 0")
		z = 0
	}

	for i := 0; i < n; i++ {
		coef := cfg.Coefficients[i]
		name := cfg.FeatureNames[i]
		if !isFinite(coef) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("coefficient for %q is not finite; skipped", name))
			continue
		}
		v, ok := fv.Value(name)
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("unknown feature %q; contributes 0", name))
			continue
		}
		z += coef * v
	}

	res.Probability = sigmoid(z)
	res.Score = res.Probability * 100
	return res, nil
}

// Validate checks a model config before it is stored.
func Validate(cfg *domain.ModelConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: model config is required", domain.ErrInvalidInput)
	}
	if cfg.Version == "" {
		return fmt.Errorf("%w: model version is required", domain.ErrInvalidInput)
	}
	if len(cfg.Coefficients) == 0 {
		return fmt.Errorf("%w: model has no coefficients", domain.ErrInvalidInput)
	}
	if len(cfg.Coefficients) != len(cfg.FeatureNames) {
		return fmt.Errorf("%w: %d coefficients for %d feature names",
			domain.ErrInvalidInput, len(cfg.Coefficients), len(cfg.FeatureNames))
	}
	if !isFinite(cfg.Intercept) {
		return fmt.Errorf("%w: intercept must be finite", domain.ErrInvalidInput)
	}
	for i, c := range cfg.Coefficients {
		if !isFinite(c) {
			return fmt.Errorf("%w: coefficient %d is not finite", domain.ErrInvalidInput, i)
		}
	}
	return nil
}

// UnknownFeatures lists model feature names the extractor does not produce.
func UnknownFeatures(cfg *domain.ModelConfig) []string {
	var fv domain.FeatureVector
	var out []string
	for _, name := range cfg.FeatureNames {
		if _, ok := fv.Value(name); !ok {
			out = append(out, name)
		}
	}
	return out
}

// sigmoid is evaluated in the numerically stable branch for each sign of z.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
