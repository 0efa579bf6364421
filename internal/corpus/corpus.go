// Package corpus defines the persisted collection of recorded actions: the
// repository contract, its error taxonomy and the record envelope shared by
// every backend.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/ayusman/mudra/internal/landmark"
)

var (
	// ErrEmptySequence is returned when a save is attempted with zero frames.
	// Nothing is written.
	ErrEmptySequence = errors.New("empty sequence")

	// ErrNotFound is returned when an action or repeat does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSchemaVersion is returned when a persisted record was written with a
	// different landmark schema.
	ErrSchemaVersion = errors.New("unsupported schema version")

	// ErrRepeatIndexRace matches any *RepeatIndexRaceError.
	ErrRepeatIndexRace = errors.New("repeat index already taken")

	// ErrInvalidName is returned for action names that cannot be used as a
	// storage namespace.
	ErrInvalidName = errors.New("invalid action name")
)

const maxNameLen = 128

// Key identifies a persisted repeat.
type Key struct {
	Action   string `json:"action"`
	Repeat   int    `json:"repeat"`
	Location string `json:"location"`
}

// Repeat is one recorded performance of an action.
type Repeat struct {
	SchemaVersion int                    `json:"schema_version"`
	Action        string                 `json:"action"`
	Index         int                    `json:"repeat"`
	Frames        []landmark.FrameRecord `json:"frames"`
	CreatedAt     time.Time              `json:"-"`
}

// Repository persists repeats under a per-action namespace.
//
// Save assigns the next unused repeat index (LastRepeat + 1) under the
// action's write lock and never overwrites an existing repeat. LastRepeat
// returns -1 when the action has no repeats. ListActions returns every
// action with at least one repeat, sorted lexicographically.
type Repository interface {
	Save(ctx context.Context, action string, frames []landmark.FrameRecord) (Key, error)
	LastRepeat(ctx context.Context, action string) (int, error)
	Repeats(ctx context.Context, action string) ([]int, error)
	ListActions(ctx context.Context) ([]string, error)
	Load(ctx context.Context, action string, repeat int) (*Repeat, error)
	FrameCount(ctx context.Context, action string, repeat int) (int, error)
}

// RepeatIndexRaceError reports that another writer already holds the repeat
// index this writer computed.
type RepeatIndexRaceError struct {
	Action string
	Repeat int
}

func (e *RepeatIndexRaceError) Error() string {
	return fmt.Sprintf("action %q: repeat %d already exists", e.Action, e.Repeat)
}

// Is makes errors.Is(err, ErrRepeatIndexRace) match.
func (e *RepeatIndexRaceError) Is(target error) bool {
	return target == ErrRepeatIndexRace
}

// RepeatError attaches the action and repeat index to a failure while
// reading or decoding a persisted repeat.
type RepeatError struct {
	Action string
	Repeat int
	Err    error
}

func (e *RepeatError) Error() string {
	return fmt.Sprintf("action %q repeat %d: %v", e.Action, e.Repeat, e.Err)
}

func (e *RepeatError) Unwrap() error {
	return e.Err
}

// ValidateName checks that an action name is usable as a directory name and
// a label.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameLen)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidName, name)
	}
	for _, r := range name {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, r)
		}
	}
	return nil
}

// CheckSave runs the argument checks every backend performs before taking
// the action lock.
func CheckSave(action string, frames []landmark.FrameRecord) error {
	if err := ValidateName(action); err != nil {
		return err
	}
	if len(frames) == 0 {
		return ErrEmptySequence
	}
	return landmark.ValidateFrames(frames)
}
