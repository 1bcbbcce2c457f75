package domain

import (
	"fmt"
	"time"
)

// TagType is the analyst's verdict on a network.
type TagType string

const (
	TagThreat        TagType = "THREAT"
	TagSuspect       TagType = "SUSPECT"
	TagFalsePositive TagType = "FALSE_POSITIVE"
	TagInvestigate   TagType = "INVESTIGATE"
	TagLegit         TagType = "LEGIT"
)

// TagTypes lists every known tag type.
var TagTypes = []TagType{TagThreat, TagSuspect, TagFalsePositive, TagInvestigate, TagLegit}

// Valid reports whether t is a known tag type.
func (t TagType) Valid() bool {
	for _, v := range TagTypes {
		if v == t {
			return true
		}
	}
	return false
}

// UserTag is an analyst override. At most one tag is active per network;
// saving a new tag replaces the previous one.
type UserTag struct {
	NetworkID  string    `json:"networkId"`
	TagType    TagType   `json:"tagType"`
	Confidence float64   `json:"confidence"`
	Notes      string    `json:"notes,omitempty"`
	TaggedAt   time.Time `json:"taggedAt"`
}

// Validate checks the tag vocabulary and confidence range.
func (t *UserTag) Validate() error {
	if t.NetworkID == "" {
		return fmt.Errorf("%w: networkId is required", ErrInvalidInput)
	}
	if !t.TagType.Valid() {
		return fmt.Errorf("%w: unknown tag type %q", ErrInvalidInput, t.TagType)
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidInput)
	}
	return nil
}
