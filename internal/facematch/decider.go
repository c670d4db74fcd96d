// Package facematch turns the distance between two face embeddings into an
// accept/reject verdict.
package facematch

import (
	"context"
	"math"

	"classattend/internal/apperr"
	"classattend/internal/identity"
)

// DefaultThreshold is the maximum Euclidean distance accepted as a match.
const DefaultThreshold = 0.6

// Decision is the outcome of comparing a candidate face to a reference.
type Decision struct {
	Accepted   bool    `json:"accepted"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
}

// EuclideanDistance returns the L2 distance between a and b.
// Vectors must have the same non-zero length.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, apperr.Invalid("empty embedding")
	}
	if len(a) != len(b) {
		return 0, apperr.Invalid("embedding length mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Decide compares candidate against reference. A non-positive threshold
// selects DefaultThreshold.
func Decide(reference, candidate []float32, threshold float64) (Decision, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	dist, err := EuclideanDistance(reference, candidate)
	if err != nil {
		return Decision{}, err
	}
	return decision(dist, threshold), nil
}

func decision(dist, threshold float64) Decision {
	conf := 1 - dist
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return Decision{
		Accepted:   dist <= threshold,
		Distance:   dist,
		Confidence: conf,
		Threshold:  threshold,
	}
}

// Decider binds a threshold to a reference vector store.
type Decider struct {
	vectors   identity.Store
	threshold float64
}

// NewDecider creates a decider. A non-positive threshold selects DefaultThreshold.
func NewDecider(vectors identity.Store, threshold float64) *Decider {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Decider{vectors: vectors, threshold: threshold}
}

// Threshold returns the configured acceptance threshold.
func (d *Decider) Threshold() float64 { return d.threshold }

// DecideFor compares candidate against the registered reference of personID.
func (d *Decider) DecideFor(ctx context.Context, personID string, candidate []float32) (Decision, error) {
	ref, ok, err := d.vectors.Get(ctx, personID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{}, apperr.ErrNoReference.With("person_id", personID)
	}
	return Decide(ref.Embedding, candidate, d.threshold)
}
