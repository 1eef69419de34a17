package backtest

import (
	"context"

	"mediamix-lab/internal/fit"
)

// StubFitter is a canned-result fitter for testing.
// It records the inputs it was given for verification.
type StubFitter struct {
	Result *fit.FitResult
	Err    error

	inputs []*fit.FitInput
}

// NewStubFitter creates a stub fitter returning the given result.
func NewStubFitter(result *fit.FitResult) *StubFitter {
	return &StubFitter{
		Result: result,
		inputs: make([]*fit.FitInput, 0),
	}
}

// Fit records the input and returns the canned result.
func (s *StubFitter) Fit(_ context.Context, input *fit.FitInput) (*fit.FitResult, error) {
	s.inputs = append(s.inputs, input)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Result, nil
}

// ID returns the fitter identifier.
func (s *StubFitter) ID() string {
	return "STUB"
}

// Inputs returns recorded inputs for test verification.
func (s *StubFitter) Inputs() []*fit.FitInput {
	return s.inputs
}

// Ensure StubFitter implements fit.Fitter
var _ fit.Fitter = (*StubFitter)(nil)
