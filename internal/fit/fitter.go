package fit

import (
	"context"
	"errors"
	"fmt"

	"mediamix-lab/internal/domain"
)

// Input validation errors
var (
	ErrNilInput       = errors.New("nil fit input")
	ErrEmptyMetric    = errors.New("empty metric")
	ErrNoChannels     = errors.New("no channels")
	ErrNoPeriods      = errors.New("no periods")
	ErrEmptyChannelID = errors.New("empty channel id")
	ErrLengthMismatch = errors.New("series length does not match period grid")
)

// Fitter estimates a response model from period-aligned series.
type Fitter interface {
	// Fit selects transform parameters and betas for every channel.
	// Returns a deterministic result: same input produces identical output.
	Fit(ctx context.Context, input *FitInput) (*FitResult, error)

	// ID returns fitter identifier (includes parameters).
	ID() string
}

// ChannelSeries is one channel's spend aligned to the common period grid.
type ChannelSeries struct {
	ChannelID string
	Spend     []float64
}

// FitInput holds all data needed for a model fit.
// Every series must have exactly one value per grid period.
type FitInput struct {
	Metric        string
	PeriodSeconds int
	PeriodStarts  []int64 // common period grid, ascending
	Channels      []*ChannelSeries
	Outcome       []float64
}

// Validate checks structural consistency of the input.
func (in *FitInput) Validate() error {
	if in == nil {
		return ErrNilInput
	}
	if in.Metric == "" {
		return ErrEmptyMetric
	}
	if len(in.Channels) == 0 {
		return ErrNoChannels
	}
	if len(in.PeriodStarts) == 0 {
		return ErrNoPeriods
	}
	if len(in.Outcome) != len(in.PeriodStarts) {
		return fmt.Errorf("%w: outcome has %d values for %d periods",
			ErrLengthMismatch, len(in.Outcome), len(in.PeriodStarts))
	}
	for _, ch := range in.Channels {
		if ch.ChannelID == "" {
			return ErrEmptyChannelID
		}
		if len(ch.Spend) != len(in.PeriodStarts) {
			return fmt.Errorf("%w: channel %s has %d values for %d periods",
				ErrLengthMismatch, ch.ChannelID, len(ch.Spend), len(in.PeriodStarts))
		}
	}
	return nil
}

// ChannelFit is one channel's fitted parameters plus its transformed series.
type ChannelFit struct {
	Params    domain.ChannelParams
	Adstocked []float64
	Saturated []float64
}

// FitResult is the outcome of a model fit.
type FitResult struct {
	Intercept    float64
	RSquared     float64
	MAPE         float64
	NRMSE        float64
	TrainPeriods int
	Channels     []*ChannelFit // in input channel order
	Predicted    []float64     // model prediction per grid period
}

// ChannelParams returns fitted parameters in input channel order.
func (r *FitResult) ChannelParams() []domain.ChannelParams {
	params := make([]domain.ChannelParams, len(r.Channels))
	for i, ch := range r.Channels {
		params[i] = ch.Params
	}
	return params
}
