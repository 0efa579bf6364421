package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/corpus/corpustest"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/store"
	"github.com/gorilla/websocket"
)

type toggle struct {
	enabled bool
	last    recognizer.Decision
}

func (t *toggle) SetEnabled(enabled bool) error { t.enabled = enabled; return nil }
func (t *toggle) IsEnabled() bool               { return t.enabled }
func (t *toggle) LastDecision() (recognizer.Decision, bool) {
	return t.last, t.last.Label != ""
}

func TestAPI_CorpusWorkflow(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "mudra.db"), logging.Discard())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	srv := New(Config{Repository: st.Corpus(), Logger: logging.Discard()})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	// 1. Upload two repeats
	for i, n := range []int{3, 6} {
		body, _ := json.Marshal(map[string]any{"frames": corpustest.Frames(n, 0)})
		resp, err := client.Post(ts.URL+"/api/actions/hello/repeats", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("POST repeats error = %v", err)
		}
		var created struct {
			Repeat   int    `json:"repeat"`
			Location string `json:"location"`
		}
		json.NewDecoder(resp.Body).Decode(&created)
		resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
		if created.Repeat != i || !strings.HasPrefix(created.Location, "action_repeats/") {
			t.Errorf("created = %+v, want repeat %d", created, i)
		}
	}

	// 2. Summary
	resp, err := client.Get(ts.URL + "/api/actions/hello")
	if err != nil {
		t.Fatal(err)
	}
	var summary struct {
		Repeats    int `json:"repeats"`
		LastRepeat int `json:"last_repeat"`
	}
	json.NewDecoder(resp.Body).Decode(&summary)
	resp.Body.Close()
	if summary.Repeats != 2 || summary.LastRepeat != 1 {
		t.Errorf("summary = %+v", summary)
	}

	// 3. Bounds
	resp, err = client.Get(ts.URL + "/api/corpus/bounds")
	if err != nil {
		t.Fatal(err)
	}
	var bounds map[string]int
	json.NewDecoder(resp.Body).Decode(&bounds)
	resp.Body.Close()
	if bounds["min_len"] != 3 || bounds["max_len"] != 6 {
		t.Errorf("bounds = %v", bounds)
	}

	// 4. Fetch a repeat back
	resp, err = client.Get(ts.URL + "/api/actions/hello/repeats/1")
	if err != nil {
		t.Fatal(err)
	}
	var rep struct {
		SchemaVersion int               `json:"schema_version"`
		Frames        []json.RawMessage `json:"frames"`
	}
	json.NewDecoder(resp.Body).Decode(&rep)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(rep.Frames) != 6 || rep.SchemaVersion != 1 {
		t.Errorf("GET repeat status %d, %d frames, schema %d", resp.StatusCode, len(rep.Frames), rep.SchemaVersion)
	}
}

func TestAPI_RecognitionFeed(t *testing.T) {
	hub := NewRecognitionHub(logging.Discard())
	defer hub.Close()
	ctrl := &toggle{}

	ts := httptest.NewServer(New(Config{Hub: hub, Translator: ctrl, Logger: logging.Discard()}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/recognitions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := ts.Client().Post(ts.URL+"/api/translator", "application/json", strings.NewReader(`{"enabled":true}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !ctrl.enabled {
		t.Fatalf("toggle status = %d, enabled = %v", resp.StatusCode, ctrl.enabled)
	}

	hub.Publish(recognizer.Decision{Label: "hello", Confidence: 0.93, Frames: 12, State: recognizer.Evaluating})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got["label"] != "hello" || got["state"] != "EVALUATING" {
		t.Errorf("message = %v", got)
	}
}
