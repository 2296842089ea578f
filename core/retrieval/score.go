package retrieval

import (
	"fmt"
	"math"

	"github.com/siherrmann/securerag/model"
)

// ScorePolicy converts the L2 distance between two unit vectors into a similarity in [0,1].
type ScorePolicy interface {
	Name() string
	Score(distance float64) float64
}

// UnitSphereScore uses the identity cos = 1 - d²/2 that holds for unit vectors.
type UnitSphereScore struct{}

func (UnitSphereScore) Name() string {
	return model.ScorePolicyUnitSphere
}

func (UnitSphereScore) Score(distance float64) float64 {
	return clamp01(1 - distance*distance/2)
}

// AngularScore maps the angle between two unit vectors linearly onto [0,1].
type AngularScore struct{}

func (AngularScore) Name() string {
	return model.ScorePolicyAngular
}

func (AngularScore) Score(distance float64) float64 {
	theta := 2 * math.Asin(math.Min(math.Max(distance, 0)/2, 1))
	return clamp01(1 - theta/math.Pi)
}

// NewScorePolicy returns the policy with the given configuration name.
func NewScorePolicy(name string) (ScorePolicy, error) {
	switch name {
	case model.ScorePolicyUnitSphere, "":
		return UnitSphereScore{}, nil
	case model.ScorePolicyAngular:
		return AngularScore{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown score policy %q", model.ErrValidation, name)
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
