package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"mediamix-lab/internal/fit"
	"mediamix-lab/internal/transform"
)

// DefaultHoldoutFraction is the share of trailing periods held out.
const DefaultHoldoutFraction = 0.25

// Engine errors
var (
	ErrInvalidHoldoutFraction = errors.New("holdout fraction must be below 1")
	ErrNotEnoughPeriods       = errors.New("not enough periods to split train and holdout")
	ErrChannelSeriesMissing   = errors.New("fitted channel has no input series")
)

// Results holds holdout evaluation output.
type Results struct {
	FitterID      string
	Metric        string
	PeriodSeconds int

	TotalPeriods   int
	TrainPeriods   int
	HoldoutPeriods int

	TrainRSquared   float64
	TrainMAPE       float64
	HoldoutRSquared float64
	HoldoutMAPE     float64

	// DegradationRatio is holdout R² over train R², 0 when train R² is
	// not positive.
	DegradationRatio float64

	// TrainResult is the model fitted on the train window.
	TrainResult *fit.FitResult
}

// Engine evaluates a fitter on a trailing holdout split.
type Engine struct {
	fitter  fit.Fitter
	holdout float64
}

// NewEngine creates a holdout evaluation engine. A holdout fraction <= 0
// selects DefaultHoldoutFraction.
func NewEngine(fitter fit.Fitter, holdoutFraction float64) *Engine {
	if holdoutFraction <= 0 {
		holdoutFraction = DefaultHoldoutFraction
	}
	return &Engine{
		fitter:  fitter,
		holdout: holdoutFraction,
	}
}

// Evaluate fits the model on the leading periods and scores it on the
// trailing holdout window.
// Steps:
//  1. Validate input and split off the trailing holdout window
//  2. Fit on the train window
//  3. Re-apply the fitted transforms over the full series
//  4. Score the holdout window
func (e *Engine) Evaluate(ctx context.Context, input *fit.FitInput) (*Results, error) {
	// 1. Validate input and split off the trailing holdout window
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if e.holdout >= 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidHoldoutFraction, e.holdout)
	}

	total := len(input.PeriodStarts)
	holdoutPeriods := holdoutSize(total, e.holdout)
	trainPeriods := total - holdoutPeriods
	if trainPeriods < 1 {
		return nil, fmt.Errorf("%w: %d total, %d held out", ErrNotEnoughPeriods, total, holdoutPeriods)
	}

	// 2. Fit on the train window
	trainResult, err := e.fitter.Fit(ctx, trainWindow(input, trainPeriods))
	if err != nil {
		return nil, err
	}

	// 3. Re-apply the fitted transforms over the full series. Lag windows
	// of the first holdout periods reach back into the train window, so
	// the transforms run over the contiguous series, not the holdout slice.
	predicted, err := predictSeries(trainResult, input)
	if err != nil {
		return nil, err
	}

	// 4. Score the holdout window
	actualHoldout := input.Outcome[trainPeriods:]
	predictedHoldout := predicted[trainPeriods:]

	trainRSquared := trainResult.RSquared
	holdoutRSquared := fit.RSquared(actualHoldout, predictedHoldout)

	degradation := 0.0
	if trainRSquared > 0 {
		degradation = holdoutRSquared / trainRSquared
	}

	return &Results{
		FitterID:         e.fitter.ID(),
		Metric:           input.Metric,
		PeriodSeconds:    input.PeriodSeconds,
		TotalPeriods:     total,
		TrainPeriods:     trainPeriods,
		HoldoutPeriods:   holdoutPeriods,
		TrainRSquared:    trainRSquared,
		TrainMAPE:        trainResult.MAPE,
		HoldoutRSquared:  holdoutRSquared,
		HoldoutMAPE:      fit.MAPE(actualHoldout, predictedHoldout),
		DegradationRatio: degradation,
		TrainResult:      trainResult,
	}, nil
}

// holdoutSize returns ceil(fraction * n).
func holdoutSize(n int, fraction float64) int {
	return int(math.Ceil(fraction * float64(n)))
}

// trainWindow restricts an input to its first n periods.
func trainWindow(input *fit.FitInput, n int) *fit.FitInput {
	channels := make([]*fit.ChannelSeries, len(input.Channels))
	for i, ch := range input.Channels {
		channels[i] = &fit.ChannelSeries{
			ChannelID: ch.ChannelID,
			Spend:     ch.Spend[:n],
		}
	}

	return &fit.FitInput{
		Metric:        input.Metric,
		PeriodSeconds: input.PeriodSeconds,
		PeriodStarts:  input.PeriodStarts[:n],
		Channels:      channels,
		Outcome:       input.Outcome[:n],
	}
}

// predictSeries computes the fitted model's prediction for every grid
// period of the input.
func predictSeries(result *fit.FitResult, input *fit.FitInput) ([]float64, error) {
	series := make(map[string][]float64, len(input.Channels))
	for _, ch := range input.Channels {
		series[ch.ChannelID] = ch.Spend
	}

	predicted := make([]float64, len(input.PeriodStarts))
	for t := range predicted {
		predicted[t] = result.Intercept
	}

	for _, ch := range result.Channels {
		params := ch.Params
		spend, ok := series[params.ChannelID]
		if !ok {
			return nil, fmt.Errorf("channel %s: %w", params.ChannelID, ErrChannelSeriesMissing)
		}

		_, saturated, err := transform.ApplyChannel(spend, params.Adstock, params.Saturation)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", params.ChannelID, err)
		}
		for t := range predicted {
			predicted[t] += params.Beta * saturated[t]
		}
	}

	return predicted, nil
}
