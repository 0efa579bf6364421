package corpus

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/sequence"
)

// Dataset file names written by WriteDir.
const (
	DatasetFile  = "dataset.f32"
	LabelsFile   = "labels.json"
	MetadataFile = "metadata.json"
)

// DatasetOptions controls BuildDataset.
type DatasetOptions struct {
	Sentinel float32
	// MaxLen overrides the padded length. It must not be shorter than the
	// longest repeat. Zero uses the corpus maximum.
	MaxLen int
}

// Dataset is a padded training batch with one label index per sequence.
type Dataset struct {
	Batch  sequence.Batch
	Labels []int
	Meta   model.Metadata
}

// BuildDataset loads every repeat of every action, flattens and pads them to
// a common length, and assigns label indices in ListActions order. The label
// order and length bounds are returned as metadata for the trained weights.
func BuildDataset(ctx context.Context, repo Repository, opts DatasetOptions) (*Dataset, error) {
	if opts.Sentinel == 0 {
		opts.Sentinel = sequence.DefaultSentinel
	}
	if err := sequence.CheckSentinel(opts.Sentinel); err != nil {
		return nil, err
	}

	actions, err := repo.ListActions(ctx)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, sequence.ErrNoSequences
	}

	var (
		tensors []sequence.Tensor
		labels  []int
		lengths []int
		keys    []Key
	)
	for label, a := range actions {
		repeats, err := repo.Repeats(ctx, a)
		if err != nil {
			return nil, err
		}
		for _, n := range repeats {
			rep, err := repo.Load(ctx, a, n)
			if err != nil {
				return nil, err
			}
			t, err := sequence.Flatten(rep.Frames)
			if err != nil {
				return nil, &RepeatError{Action: a, Repeat: n, Err: err}
			}
			if t.Len() == 0 {
				return nil, &RepeatError{Action: a, Repeat: n, Err: ErrEmptySequence}
			}
			tensors = append(tensors, t)
			labels = append(labels, label)
			lengths = append(lengths, t.Len())
			keys = append(keys, Key{Action: a, Repeat: n})
		}
	}

	bounds, err := sequence.ComputeLengthBounds(lengths)
	if err != nil {
		return nil, err
	}
	target := bounds.Max
	if opts.MaxLen > 0 {
		target = opts.MaxLen
	}

	padded := make([]sequence.Tensor, len(tensors))
	for i, t := range tensors {
		p, err := sequence.Pad(t, target, opts.Sentinel)
		if err != nil {
			return nil, &RepeatError{Action: keys[i].Action, Repeat: keys[i].Repeat, Err: err}
		}
		padded[i] = p
	}

	batch, err := sequence.Stack(padded...)
	if err != nil {
		return nil, err
	}

	return &Dataset{
		Batch:  batch,
		Labels: labels,
		Meta: model.Metadata{
			SchemaVersion: landmark.SchemaVersion,
			MinSeqLen:     bounds.Min,
			MaxSeqLen:     target,
			FrameDim:      landmark.FrameDim,
			Sentinel:      opts.Sentinel,
			LabelOrder:    actions,
		},
	}, nil
}

// WriteDir writes the batch as little-endian float32 (N*L*D values), the
// label indices as a JSON array, and the metadata.
func (d *Dataset) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, DatasetFile))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, d.Batch.Data); err != nil {
		f.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	labels, err := json.Marshal(d.Labels)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, LabelsFile), labels, 0o644); err != nil {
		return err
	}

	return model.SaveMetadata(filepath.Join(dir, MetadataFile), d.Meta)
}
