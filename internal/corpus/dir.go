package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ayusman/mudra/internal/landmark"
)

const (
	repeatSep = "__"
	recordExt = ".json"
)

// DirRepository stores repeat n of action a at <root>/<a>/<a>__<n>.json.
//
// Records are written to a temporary file and published with a hard link,
// which fails if the target exists, so a repeat is never overwritten even
// by a writer in another process.
type DirRepository struct {
	root   string
	locks  Locks
	logger *slog.Logger
}

// NewDirRepository creates the root directory if needed.
func NewDirRepository(root string, logger *slog.Logger) (*DirRepository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirRepository{root: root, logger: logger}, nil
}

// Root returns the corpus directory.
func (r *DirRepository) Root() string {
	return r.root
}

// RepeatPath returns the file path of a repeat.
func (r *DirRepository) RepeatPath(action string, repeat int) string {
	return filepath.Join(r.root, action, action+repeatSep+strconv.Itoa(repeat)+recordExt)
}

// Save writes frames as the next repeat of action.
func (r *DirRepository) Save(ctx context.Context, action string, frames []landmark.FrameRecord) (Key, error) {
	if err := ctx.Err(); err != nil {
		return Key{}, err
	}
	if err := CheckSave(action, frames); err != nil {
		return Key{}, err
	}

	unlock := r.locks.Lock(action)
	defer unlock()

	last, err := r.LastRepeat(ctx, action)
	if err != nil {
		return Key{}, err
	}
	next := last + 1

	data, err := EncodeRecord(action, next, frames)
	if err != nil {
		return Key{}, fmt.Errorf("encode record: %w", err)
	}

	dir := filepath.Join(r.root, action)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Key{}, fmt.Errorf("create action dir: %w", err)
	}

	path := r.RepeatPath(action, next)
	if err := publish(dir, path, data); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Key{}, &RepeatIndexRaceError{Action: action, Repeat: next}
		}
		return Key{}, err
	}

	r.logger.Debug("saved repeat", "action", action, "repeat", next, "frames", len(frames))
	return Key{Action: action, Repeat: next, Location: path}, nil
}

// publish writes data to a temp file in dir and links it to path.
func publish(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close record: %w", err)
	}

	if err := os.Link(tmp.Name(), path); err != nil {
		return err
	}
	return nil
}

// Repeats returns the repeat indices of action in ascending order.
func (r *DirRepository) Repeats(ctx context.Context, action string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateName(action); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(r.root, action))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read action dir: %w", err)
	}

	var repeats []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := parseRepeatFile(action, e.Name()); ok {
			repeats = append(repeats, n)
		}
	}
	sort.Ints(repeats)
	return repeats, nil
}

// parseRepeatFile extracts n from "<action>__<n>.json".
func parseRepeatFile(action, name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, action+repeatSep)
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, recordExt)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || strconv.Itoa(n) != digits {
		return 0, false
	}
	return n, true
}

// LastRepeat returns the highest repeat index of action, or -1.
func (r *DirRepository) LastRepeat(ctx context.Context, action string) (int, error) {
	repeats, err := r.Repeats(ctx, action)
	if err != nil {
		return 0, err
	}
	if len(repeats) == 0 {
		return -1, nil
	}
	return repeats[len(repeats)-1], nil
}

// ListActions returns the actions that have at least one repeat, sorted.
func (r *DirRepository) ListActions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}

	var actions []string
	for _, e := range entries {
		if !e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		repeats, err := r.Repeats(ctx, e.Name())
		if err != nil {
			return nil, err
		}
		if len(repeats) > 0 {
			actions = append(actions, e.Name())
		}
	}
	sort.Strings(actions)
	return actions, nil
}

// Load reads and validates a repeat.
func (r *DirRepository) Load(ctx context.Context, action string, repeat int) (*Repeat, error) {
	data, info, err := r.read(ctx, action, repeat)
	if err != nil {
		return nil, err
	}
	rep, err := DecodeRecord(action, repeat, data)
	if err != nil {
		return nil, err
	}
	rep.CreatedAt = info.ModTime()
	return rep, nil
}

// FrameCount returns the number of frames in a repeat.
func (r *DirRepository) FrameCount(ctx context.Context, action string, repeat int) (int, error) {
	data, _, err := r.read(ctx, action, repeat)
	if err != nil {
		return 0, err
	}
	return countFrames(action, repeat, data)
}

func (r *DirRepository) read(ctx context.Context, action string, repeat int) ([]byte, fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := ValidateName(action); err != nil {
		return nil, nil, err
	}
	if repeat < 0 {
		return nil, nil, fmt.Errorf("%w: action %q repeat %d", ErrNotFound, action, repeat)
	}

	path := r.RepeatPath(action, repeat)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: action %q repeat %d", ErrNotFound, action, repeat)
		}
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &RepeatError{Action: action, Repeat: repeat, Err: err}
	}
	return data, info, nil
}
