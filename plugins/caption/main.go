// Package main provides a caption plugin.
// It appends every recognized sign to a plain-text caption file, one line per sign.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event      string          `json:"event"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Frames     int             `json:"frames"`
	Final      bool            `json:"final"`
	Timestamp  time.Time       `json:"timestamp"`
	Config     json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the plugin section of plugin.json.
type Config struct {
	// File is the caption file. Relative paths resolve against the plugin directory.
	File string `json:"file"`
	// Confidence adds the classifier confidence to each line.
	Confidence bool `json:"confidence"`
}

const defaultFile = "captions.txt"

func main() {
	json.NewEncoder(os.Stdout).Encode(handle(os.Stdin))
}

func handle(r io.Reader) Response {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return errorResponse(fmt.Sprintf("failed to decode request: %v", err))
	}
	if req.Event != "sign" {
		return errorResponse(fmt.Sprintf("unsupported event: %q", req.Event))
	}
	if req.Label == "" {
		return errorResponse("missing label")
	}

	cfg := Config{File: defaultFile}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return errorResponse(fmt.Sprintf("invalid config: %v", err))
		}
	}

	line := formatLine(req, cfg)
	if err := appendLine(cfg.File, line); err != nil {
		return errorResponse(fmt.Sprintf("write caption: %v", err))
	}

	data, _ := json.Marshal(map[string]string{"file": cfg.File, "line": line})
	return Response{Success: true, Data: data}
}

// formatLine renders "<RFC3339 time>\t<label>[\t<confidence>]".
func formatLine(req Request, cfg Config) string {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := ts.UTC().Format(time.RFC3339) + "\t" + req.Label
	if cfg.Confidence {
		line += "\t" + strconv.FormatFloat(req.Confidence, 'f', 3, 64)
	}
	return line
}

func appendLine(path, line string) error {
	if path == "" {
		return errors.New("empty caption file path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func errorResponse(msg string) Response {
	return Response{Success: false, Error: msg}
}
