package domain

import "time"

// DefaultModelType is the model type used for threat scoring.
const DefaultModelType = "threat_logistic"

// ModelConfig holds the coefficients of an already-trained linear model.
// Coefficients[i] weights the feature named FeatureNames[i].
type ModelConfig struct {
	ModelType    string    `json:"modelType"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	FeatureNames []string  `json:"featureNames"`
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trainedAt"`
}
