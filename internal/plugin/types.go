// Package plugin discovers external plugin executables and forwards
// recognized signs to the ones that subscribe to them.
package plugin

import (
	"encoding/json"
	"slices"
	"time"
)

// EventSign is the event name for a recognized sign.
const EventSign = "sign"

// AllSigns in a manifest's signs list subscribes to every label.
const AllSigns = "*"

// Manifest describes a plugin. It is read from plugin.json in the plugin's
// directory.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Signs       []string `json:"signs"`
	// Config is passed unchanged in every request.
	Config json.RawMessage `json:"config,omitempty"`
}

// Subscribes reports whether the plugin wants events for label.
func (m Manifest) Subscribes(label string) bool {
	return slices.Contains(m.Signs, AllSigns) || slices.Contains(m.Signs, label)
}

// Request is written as JSON to the plugin's stdin.
type Request struct {
	Event      string          `json:"event"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Frames     int             `json:"frames"`
	Final      bool            `json:"final,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// Response is read as JSON from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
