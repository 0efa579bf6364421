package corpus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/landmark"
)

// EncodeRecord serializes a repeat into the self-describing envelope every
// backend persists:
//
//	{"schema_version":1,"action":"hello","repeat":0,"frames":[{"POSE":[[x,y,z,v],...],...}]}
func EncodeRecord(action string, repeat int, frames []landmark.FrameRecord) ([]byte, error) {
	return json.Marshal(Repeat{
		SchemaVersion: landmark.SchemaVersion,
		Action:        action,
		Index:         repeat,
		Frames:        frames,
	})
}

// DecodeRecord parses and validates an envelope written by EncodeRecord.
// Errors are wrapped in a *RepeatError naming the expected key.
func DecodeRecord(action string, repeat int, data []byte) (*Repeat, error) {
	var env struct {
		SchemaVersion int             `json:"schema_version"`
		Action        string          `json:"action"`
		Index         int             `json:"repeat"`
		Frames        json.RawMessage `json:"frames"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &RepeatError{Action: action, Repeat: repeat, Err: fmt.Errorf("decode record: %w", err)}
	}
	if env.SchemaVersion != landmark.SchemaVersion {
		return nil, &RepeatError{Action: action, Repeat: repeat,
			Err: fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, env.SchemaVersion, landmark.SchemaVersion)}
	}
	if env.Action != action || env.Index != repeat {
		return nil, &RepeatError{Action: action, Repeat: repeat,
			Err: fmt.Errorf("record is labelled %q repeat %d", env.Action, env.Index)}
	}

	frames, err := landmark.DecodeFrames(env.Frames)
	if err != nil {
		var se *landmark.ShapeError
		if !errors.As(err, &se) {
			err = fmt.Errorf("decode record: %w", err)
		}
		return nil, &RepeatError{Action: action, Repeat: repeat, Err: err}
	}
	if err := landmark.ValidateFrames(frames); err != nil {
		return nil, &RepeatError{Action: action, Repeat: repeat, Err: err}
	}
	return &Repeat{
		SchemaVersion: env.SchemaVersion,
		Action:        env.Action,
		Index:         env.Index,
		Frames:        frames,
	}, nil
}

// countFrames reads the frame count of an envelope without decoding the points.
func countFrames(action string, repeat int, data []byte) (int, error) {
	var r struct {
		SchemaVersion int               `json:"schema_version"`
		Frames        []json.RawMessage `json:"frames"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return 0, &RepeatError{Action: action, Repeat: repeat, Err: fmt.Errorf("decode record: %w", err)}
	}
	if r.SchemaVersion != landmark.SchemaVersion {
		return 0, &RepeatError{Action: action, Repeat: repeat,
			Err: fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, r.SchemaVersion, landmark.SchemaVersion)}
	}
	return len(r.Frames), nil
}
