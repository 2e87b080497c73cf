package resize

import (
	"context"
	"fmt"
	"math"

	"github.com/samsaffron/sizesync/internal/imaging"
)

// Search defaults.
const (
	DefaultMaxIterations   = 20
	DefaultStartQuality    = 95
	DefaultMinQuality      = 10
	DefaultQualityStep     = 5
	DefaultScaleStep       = 0.8
	DefaultOverBudgetRatio = 1.5
)

// FailureReason explains why a search gave up.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonInvalidBudget
	ReasonDegenerate
	ReasonQualityFloor
	ReasonIterationCap
	ReasonCancelled
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonInvalidBudget:
		return "invalid budget"
	case ReasonDegenerate:
		return "degenerate dimensions"
	case ReasonQualityFloor:
		return "quality floor reached"
	case ReasonIterationCap:
		return "iteration cap reached"
	case ReasonCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Result is the outcome of a size-targeting search. Found distinguishes
// success from failure; Reason is set only on failure.
type Result struct {
	Found      bool
	Data       []byte
	Width      int
	Height     int
	Quality    int
	Iterations int
	Reason     FailureReason
}

// Adjustment names the axis moved after a rejected attempt.
type Adjustment int

const (
	AdjustNone Adjustment = iota
	AdjustScale
	AdjustQuality
)

// Attempt records one encode performed by the search.
type Attempt struct {
	Iteration int
	Scale     float64
	Width     int
	Height    int
	Quality   int
	Size      int
	Accepted  bool
	// Next is the adjustment chosen after this attempt (AdjustNone if accepted).
	Next Adjustment
}

// Searcher finds the first JPEG encoding of an image that fits a byte budget.
// Zero-valued fields fall back to the Default* constants.
type Searcher struct {
	Codec           imaging.Codec
	MaxIterations   int
	StartQuality    int
	MinQuality      int
	QualityStep     int
	ScaleStep       float64
	OverBudgetRatio float64
	// Trace, when set, is called after every encode.
	Trace func(Attempt)
}

// NewSearcher returns a Searcher with default policy over codec.
func NewSearcher(codec imaging.Codec) *Searcher {
	return &Searcher{Codec: codec}
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

// Search starts at full scale and StartQuality and encodes once per
// iteration. The first encoding no larger than budget is returned. A miss by
// more than OverBudgetRatio shrinks the geometry by ScaleStep; a smaller miss
// lowers quality by QualityStep. Exactly one axis moves per iteration.
//
// Policy failures (budget out of reach, degenerate size, cancellation) are
// reported through Result; only codec errors are returned as error.
func (s *Searcher) Search(ctx context.Context, src *imaging.Image, budget int) (Result, error) {
	if budget <= 0 {
		return Result{Reason: ReasonInvalidBudget}, nil
	}
	if src == nil {
		return Result{}, fmt.Errorf("search: no source image")
	}
	if s.Codec == nil {
		return Result{}, fmt.Errorf("search: no codec")
	}

	var (
		maxIter   = orInt(s.MaxIterations, DefaultMaxIterations)
		minQ      = orInt(s.MinQuality, DefaultMinQuality)
		stepQ     = orInt(s.QualityStep, DefaultQualityStep)
		stepScale = orFloat(s.ScaleStep, DefaultScaleStep)
		ratio     = orFloat(s.OverBudgetRatio, DefaultOverBudgetRatio)
	)

	img := imaging.Flatten(src)
	scale := 1.0
	quality := orInt(s.StartQuality, DefaultStartQuality)

	for i := 1; i <= maxIter; i++ {
		if ctx != nil && ctx.Err() != nil {
			return Result{Reason: ReasonCancelled, Iterations: i - 1}, nil
		}

		w := int(math.Floor(float64(img.Width) * scale))
		h := int(math.Floor(float64(img.Height) * scale))
		if w == 0 || h == 0 {
			return Result{Reason: ReasonDegenerate, Iterations: i - 1}, nil
		}

		frame := img
		if w != img.Width || h != img.Height {
			var err error
			frame, err = s.Codec.Resize(img, w, h)
			if err != nil {
				return Result{Iterations: i - 1}, fmt.Errorf("resize to %dx%d: %w", w, h, err)
			}
		}
		data, err := s.Codec.Encode(frame, imaging.JPEG, quality)
		if err != nil {
			return Result{Iterations: i - 1}, fmt.Errorf("encode %dx%d q=%d: %w", w, h, quality, err)
		}

		attempt := Attempt{Iteration: i, Scale: scale, Width: w, Height: h, Quality: quality, Size: len(data)}
		if len(data) <= budget {
			attempt.Accepted = true
			s.trace(attempt)
			return Result{Found: true, Data: data, Width: w, Height: h, Quality: quality, Iterations: i}, nil
		}

		if float64(len(data)) > float64(budget)*ratio {
			scale *= stepScale
			attempt.Next = AdjustScale
		} else {
			quality -= stepQ
			attempt.Next = AdjustQuality
		}
		s.trace(attempt)

		if quality < minQ {
			return Result{Reason: ReasonQualityFloor, Iterations: i}, nil
		}
	}
	return Result{Reason: ReasonIterationCap, Iterations: maxIter}, nil
}

func (s *Searcher) trace(a Attempt) {
	if s.Trace != nil {
		s.Trace(a)
	}
}
