package decision

import (
	"errors"
	"testing"
)

func TestDecisionInput_Validate(t *testing.T) {
	validInput := &DecisionInput{
		RunID:           "run-1",
		Metric:          "conversions",
		OutcomeCoverage: 0.95,
	}

	// Valid input
	if err := validInput.Validate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	// Nil input
	var nilInput *DecisionInput
	if err := nilInput.Validate(); !errors.Is(err, ErrNilInput) {
		t.Errorf("expected ErrNilInput, got %v", err)
	}

	// Empty run ID
	input := *validInput
	input.RunID = ""
	if err := input.Validate(); !errors.Is(err, ErrEmptyRunID) {
		t.Errorf("expected ErrEmptyRunID, got %v", err)
	}

	// Empty metric
	input = *validInput
	input.Metric = ""
	if err := input.Validate(); !errors.Is(err, ErrEmptyMetric) {
		t.Errorf("expected ErrEmptyMetric, got %v", err)
	}

	// Negative coverage
	input = *validInput
	input.OutcomeCoverage = -0.1
	if err := input.Validate(); !errors.Is(err, ErrNegativeCoverage) {
		t.Errorf("expected ErrNegativeCoverage, got %v", err)
	}

	// Coverage above 1
	input = *validInput
	input.OutcomeCoverage = 1.5
	if err := input.Validate(); !errors.Is(err, ErrInvalidCoverage) {
		t.Errorf("expected ErrInvalidCoverage, got %v", err)
	}

	// Boundary cases - valid
	input = *validInput
	input.OutcomeCoverage = 0
	if err := input.Validate(); err != nil {
		t.Errorf("coverage 0 should be valid, got %v", err)
	}

	input.OutcomeCoverage = 1
	if err := input.Validate(); err != nil {
		t.Errorf("coverage 1 should be valid, got %v", err)
	}
}
