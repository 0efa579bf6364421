// Package model holds the trained classifier: the metadata persisted beside
// its weights and the ONNX Runtime session that evaluates it.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/sequence"
)

// Metadata is written next to the weights at training time and reloaded
// before inference. LabelOrder maps output index i to an action name.
type Metadata struct {
	SchemaVersion int      `json:"schema_version"`
	MinSeqLen     int      `json:"min_seq_len"`
	MaxSeqLen     int      `json:"max_seq_len"`
	FrameDim      int      `json:"frame_dim"`
	Sentinel      float32  `json:"sentinel"`
	LabelOrder    []string `json:"label_order"`
}

// LabelAlignmentError reports a classifier whose output width does not match
// the persisted label order.
type LabelAlignmentError struct {
	Labels  int
	Outputs int
}

func (e *LabelAlignmentError) Error() string {
	return fmt.Sprintf("label order has %d labels but classifier outputs %d values", e.Labels, e.Outputs)
}

// Validate checks the metadata against the compiled-in landmark schema.
func (m Metadata) Validate() error {
	if m.SchemaVersion != landmark.SchemaVersion {
		return fmt.Errorf("metadata schema version %d, want %d", m.SchemaVersion, landmark.SchemaVersion)
	}
	if m.FrameDim != landmark.FrameDim {
		return fmt.Errorf("metadata frame dim %d, want %d", m.FrameDim, landmark.FrameDim)
	}
	if m.MinSeqLen <= 0 || m.MaxSeqLen < m.MinSeqLen {
		return fmt.Errorf("invalid sequence length bounds [%d, %d]", m.MinSeqLen, m.MaxSeqLen)
	}
	if err := sequence.CheckSentinel(m.Sentinel); err != nil {
		return err
	}
	if len(m.LabelOrder) == 0 {
		return errors.New("label order is empty")
	}
	seen := make(map[string]bool, len(m.LabelOrder))
	for _, l := range m.LabelOrder {
		if l == "" {
			return errors.New("label order contains an empty label")
		}
		if seen[l] {
			return fmt.Errorf("label %q appears twice", l)
		}
		seen[l] = true
	}
	return nil
}

// CheckOutputWidth fails with *LabelAlignmentError unless the classifier
// produces one value per label.
func (m Metadata) CheckOutputWidth(outputs int) error {
	if outputs != len(m.LabelOrder) {
		return &LabelAlignmentError{Labels: len(m.LabelOrder), Outputs: outputs}
	}
	return nil
}

// Label returns the action name for output index i.
func (m Metadata) Label(i int) (string, bool) {
	if i < 0 || i >= len(m.LabelOrder) {
		return "", false
	}
	return m.LabelOrder[i], true
}

// Bounds returns the sequence length bounds the classifier was trained with.
func (m Metadata) Bounds() sequence.Bounds {
	return sequence.Bounds{Min: m.MinSeqLen, Max: m.MaxSeqLen}
}

// LoadMetadata reads and validates a metadata file.
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return m, nil
}

// SaveMetadata validates m and writes it as indented JSON.
func SaveMetadata(path string, m Metadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
