// Package gesture recognizes signs without a trained model by matching the
// buffered sequence against the recorded corpus with Dynamic Time Warping.
package gesture

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/sequence"
)

// DefaultTemperature spreads DTW distances into probabilities. Distances
// are in shoulder widths per frame.
const DefaultTemperature = 0.1

// Match represents a matching result between input and a template.
type Match struct {
	Template *Template
	Score    float64 // 1 / (1 + distance)
	Distance float64
}

// Matcher matches feature paths against templates and implements
// recognizer.Classifier.
type Matcher struct {
	templates   []Template
	meta        model.Metadata
	temperature float64
}

// NewMatcher creates a matcher. temperature <= 0 uses DefaultTemperature.
func NewMatcher(templates []Template, meta model.Metadata, temperature float64) (*Matcher, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}
	for _, t := range templates {
		if t.Index < 0 || t.Index >= len(meta.LabelOrder) || meta.LabelOrder[t.Index] != t.Label {
			return nil, fmt.Errorf("template %s/%d does not match the label order", t.Label, t.Repeat)
		}
	}
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Matcher{templates: templates, meta: meta, temperature: temperature}, nil
}

// Metadata returns the label order and length bounds the matcher uses.
func (m *Matcher) Metadata() model.Metadata {
	return m.meta
}

// Match returns every template sorted by score, best first.
func (m *Matcher) Match(path [][]float32) []Match {
	if len(path) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(m.templates))
	for i := range m.templates {
		t := &m.templates[i]
		distance := DTWDistance(path, t.Path)
		if math.IsInf(distance, 1) {
			continue
		}
		matches = append(matches, Match{
			Template: t,
			Score:    1.0 / (1.0 + distance),
			Distance: distance,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Classify scores each label by its closest template and turns the scores
// into probabilities with a softmax over -distance/temperature.
func (m *Matcher) Classify(ctx context.Context, input sequence.Batch) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input.N != 1 || input.D != m.meta.FrameDim {
		return nil, fmt.Errorf("input shape %v, want [1 L %d]", input.Shape(), m.meta.FrameDim)
	}

	path := Path(input.Row(0), m.meta.Sentinel)
	if len(path) == 0 {
		return nil, fmt.Errorf("input holds only padding")
	}

	best := make([]float64, len(m.meta.LabelOrder))
	for i := range best {
		best[i] = math.Inf(1)
	}
	for _, match := range m.Match(path) {
		if match.Distance < best[match.Template.Index] {
			best[match.Template.Index] = match.Distance
		}
	}

	closest := math.Inf(1)
	for _, d := range best {
		closest = min(closest, d)
	}
	if math.IsInf(closest, 1) {
		return nil, fmt.Errorf("no template could be compared")
	}

	probs := make([]float32, len(best))
	var sum float64
	weights := make([]float64, len(best))
	for i, d := range best {
		// shifted by the closest distance so the largest weight is 1
		weights[i] = math.Exp(-(d - closest) / m.temperature)
		sum += weights[i]
	}
	for i, w := range weights {
		probs[i] = float32(w / sum)
	}
	return probs, nil
}
