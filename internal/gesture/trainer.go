package gesture

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/sequence"
)

// ErrNoTemplates is returned when the corpus holds nothing to match against.
var ErrNoTemplates = errors.New("no templates")

// Template is one recorded repeat reduced to its feature path.
type Template struct {
	Label  string
	Index  int // position of Label in the label order
	Repeat int
	Path   [][]float32
}

// LoadTemplates turns every repeat of the corpus into a template. Labels
// follow ListActions order, and the returned metadata carries that order
// and the corpus length bounds, as a trained model's would.
func LoadTemplates(ctx context.Context, repo corpus.Repository, sentinel float32) ([]Template, model.Metadata, error) {
	if sentinel == 0 {
		sentinel = sequence.DefaultSentinel
	}

	actions, err := repo.ListActions(ctx)
	if err != nil {
		return nil, model.Metadata{}, err
	}
	if len(actions) == 0 {
		return nil, model.Metadata{}, fmt.Errorf("%w: the corpus is empty", ErrNoTemplates)
	}

	var templates []Template
	var lengths []int
	for idx, action := range actions {
		repeats, err := repo.Repeats(ctx, action)
		if err != nil {
			return nil, model.Metadata{}, err
		}
		for _, n := range repeats {
			rep, err := repo.Load(ctx, action, n)
			if err != nil {
				return nil, model.Metadata{}, err
			}
			t, err := sequence.Flatten(rep.Frames)
			if err != nil {
				return nil, model.Metadata{}, &corpus.RepeatError{Action: action, Repeat: n, Err: err}
			}
			templates = append(templates, Template{
				Label:  action,
				Index:  idx,
				Repeat: n,
				Path:   Path(t, sentinel),
			})
			lengths = append(lengths, t.Len())
		}
	}

	bounds, err := sequence.ComputeLengthBounds(lengths)
	if err != nil {
		return nil, model.Metadata{}, err
	}
	meta := model.Metadata{
		SchemaVersion: landmark.SchemaVersion,
		MinSeqLen:     bounds.Min,
		MaxSeqLen:     bounds.Max,
		FrameDim:      landmark.FrameDim,
		Sentinel:      sentinel,
		LabelOrder:    actions,
	}
	return templates, meta, nil
}
