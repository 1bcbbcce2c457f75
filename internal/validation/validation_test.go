package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiowatch/radiowatch/internal/domain"
)

type inner struct {
	Radius float64 `json:"radiusM" validate:"gt=0"`
}

type request struct {
	Name   string  `json:"name" validate:"required"`
	Score  float64 `json:"score" validate:"gte=0,lte=100"`
	Kind   string  `json:"kind" validate:"omitempty,oneof=a b"`
	Secret string  `json:"-" validate:"omitempty,min=4"`
	Inner  inner   `json:"inner"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name   string
		req    request
		fields []string
	}{
		{
			name: "valid",
			req:  request{Name: "x", Score: 50, Kind: "a", Inner: inner{Radius: 1}},
		},
		{
			name:   "missing name",
			req:    request{Score: 10, Inner: inner{Radius: 1}},
			fields: []string{"name"},
		},
		{
			name:   "several failures use json names",
			req:    request{Name: "x", Score: 101, Kind: "c", Secret: "ab"},
			fields: []string{"score", "kind", "Secret", "inner.radiusM"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(&tt.req)
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))

			var verr *Error
			require.True(t, errors.As(err, &verr))
			got := make([]string, len(verr.Fields))
			for i, f := range verr.Fields {
				got[i] = f.Field
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestStructDomainTypes(t *testing.T) {
	assert.NoError(t, Struct(&domain.HomeLocation{Lat: 40, Lon: -74, RadiusM: 100}))

	err := Struct(&domain.HomeLocation{Lat: 91, Lon: -74})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lat failed lte=90")

	assert.NoError(t, Struct(domain.DefaultConfig()))
	assert.NoError(t, Struct(domain.ProConfig()))
}

func TestStructNonStruct(t *testing.T) {
	err := Struct(42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
