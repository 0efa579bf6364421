package corpus

import (
	"context"
	"fmt"

	"github.com/ayusman/mudra/internal/sequence"
)

// Summary describes the repeats recorded for one action.
type Summary struct {
	Action     string `json:"action"`
	Repeats    int    `json:"repeats"`
	LastRepeat int    `json:"last_repeat"`
}

// Summarize returns the summary of one action, or ErrNotFound if it has no
// repeats.
func Summarize(ctx context.Context, repo Repository, action string) (Summary, error) {
	repeats, err := repo.Repeats(ctx, action)
	if err != nil {
		return Summary{}, err
	}
	if len(repeats) == 0 {
		return Summary{}, fmt.Errorf("%w: action %q", ErrNotFound, action)
	}
	return Summary{Action: action, Repeats: len(repeats), LastRepeat: repeats[len(repeats)-1]}, nil
}

// Summaries returns a summary per action in ListActions order.
func Summaries(ctx context.Context, repo Repository) ([]Summary, error) {
	actions, err := repo.ListActions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(actions))
	for _, a := range actions {
		s, err := Summarize(ctx, repo, a)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// LengthBounds scans the frame count of every persisted repeat. An empty
// corpus fails with sequence.ErrNoSequences.
func LengthBounds(ctx context.Context, repo Repository) (sequence.Bounds, error) {
	actions, err := repo.ListActions(ctx)
	if err != nil {
		return sequence.Bounds{}, err
	}

	var lengths []int
	for _, a := range actions {
		repeats, err := repo.Repeats(ctx, a)
		if err != nil {
			return sequence.Bounds{}, err
		}
		for _, n := range repeats {
			count, err := repo.FrameCount(ctx, a, n)
			if err != nil {
				return sequence.Bounds{}, err
			}
			if count == 0 {
				return sequence.Bounds{}, &RepeatError{Action: a, Repeat: n, Err: ErrEmptySequence}
			}
			lengths = append(lengths, count)
		}
	}
	return sequence.ComputeLengthBounds(lengths)
}

// Copy saves every repeat of src into dst in ListActions and repeat order.
// Repeat indices are assigned by dst.
func Copy(ctx context.Context, dst, src Repository) ([]Key, error) {
	actions, err := src.ListActions(ctx)
	if err != nil {
		return nil, err
	}

	var keys []Key
	for _, a := range actions {
		repeats, err := src.Repeats(ctx, a)
		if err != nil {
			return keys, err
		}
		for _, n := range repeats {
			rep, err := src.Load(ctx, a, n)
			if err != nil {
				return keys, err
			}
			key, err := dst.Save(ctx, a, rep.Frames)
			if err != nil {
				return keys, &RepeatError{Action: a, Repeat: n, Err: err}
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}
