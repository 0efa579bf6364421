// Package main provides a text-to-speech plugin.
// It speaks each recognized sign with the platform speech command:
// say on macOS, espeak on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event  string          `json:"event"`
	Label  string          `json:"label"`
	Final  bool            `json:"final"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the plugin section of plugin.json.
type Config struct {
	Voice string `json:"voice"`
	// Rate in words per minute; 0 keeps the system default.
	Rate int `json:"rate"`
	// Phrases maps a label to the text spoken for it.
	Phrases map[string]string `json:"phrases"`
}

// speakers builds the speech command for each supported platform.
var speakers = map[string]func(text string, cfg Config) *exec.Cmd{
	"darwin": func(text string, cfg Config) *exec.Cmd {
		args := []string{}
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		if cfg.Rate > 0 {
			args = append(args, "-r", strconv.Itoa(cfg.Rate))
		}
		return exec.Command("say", append(args, text)...)
	},
	"linux": func(text string, cfg Config) *exec.Cmd {
		args := []string{}
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		if cfg.Rate > 0 {
			args = append(args, "-s", strconv.Itoa(cfg.Rate))
		}
		return exec.Command("espeak", append(args, text)...)
	},
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}
	if req.Label == "" {
		writeErrorResponse("missing label")
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	speaker, ok := speakers[runtime.GOOS]
	if !ok {
		writeErrorResponse(fmt.Sprintf("speech not supported on %s", runtime.GOOS))
		return
	}

	text := phrase(req.Label, cfg)
	if output, err := speaker(text, cfg).CombinedOutput(); err != nil {
		writeErrorResponse(fmt.Sprintf("speak %q failed: %v: %s", text, err, output))
		return
	}

	writeSuccessResponse(text)
}

// phrase returns the configured text for label, or the label itself.
func phrase(label string, cfg Config) string {
	if p, ok := cfg.Phrases[label]; ok && p != "" {
		return p
	}
	return label
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response with the spoken text.
func writeSuccessResponse(text string) {
	data, _ := json.Marshal(map[string]string{"spoken": text})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}
