package domain

import (
	"fmt"
	"strings"
)

// BiasLabel is the fixed political-bias classification attached to a Source.
type BiasLabel string

const (
	BiasLeft      BiasLabel = "left"
	BiasLeanLeft  BiasLabel = "lean-left"
	BiasCenter    BiasLabel = "center"
	BiasLeanRight BiasLabel = "lean-right"
	BiasRight     BiasLabel = "right"
)

// BiasLabels lists every label from left to right.
var BiasLabels = []BiasLabel{BiasLeft, BiasLeanLeft, BiasCenter, BiasLeanRight, BiasRight}

// Valid reports whether b is one of the known labels.
func (b BiasLabel) Valid() bool {
	for _, l := range BiasLabels {
		if b == l {
			return true
		}
	}
	return false
}

// ParseBiasLabel normalizes raw and validates it. An empty value defaults to center.
func ParseBiasLabel(raw string) (BiasLabel, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return BiasCenter, nil
	}
	b := BiasLabel(raw)
	if !b.Valid() {
		return "", fmt.Errorf("unknown bias label %q", raw)
	}
	return b, nil
}
