package e2e

import (
	"context"
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/gorilla/websocket"
)

func newSource(t *testing.T, det detector.Detector) *app.CameraSource {
	t.Helper()
	frames := capture.SolidFrames(3, color.RGBA{G: 120, A: 255})
	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})
	src, err := app.NewCameraSource(app.SourceConfig{
		Camera:   capture.NewMockCamera(frames, true),
		Detector: det,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewCameraSource() error = %v", err)
	}
	return src
}

// record captures one repeat per action, each with its own synthetic pose.
func record(t *testing.T, repo corpus.Repository, offsets map[string]float64) {
	t.Helper()
	det := detector.NewMockDetector()
	a, err := app.New(app.Config{
		Repository: repo,
		Source:     newSource(t, det),
		PluginDir:  t.TempDir(),
		Logger:     logging.Discard(),
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	defer a.Close()
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for action, offset := range offsets {
		det.SetResult(detector.FullResult(offset))
		if _, err := a.Record(context.Background(), app.Session{Action: action, Frames: 5}); err != nil {
			t.Fatalf("Record(%s) error = %v", action, err)
		}
	}
}

func TestE2E_RecordAndTranslate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	ctx := context.Background()

	st, err := store.New(filepath.Join(t.TempDir(), "mudra.db"), logging.Discard())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()
	repo := st.Corpus()

	record(t, repo, map[string]float64{"hello": 0, "thanks": 0.3})

	templates, meta, err := gesture.LoadTemplates(ctx, repo, 0)
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	matcher, err := gesture.NewMatcher(templates, meta, 0)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}

	det := detector.NewMockDetector()
	det.SetResult(detector.FullResult(0.3))
	a, err := app.New(app.Config{
		Repository: repo,
		Source:     newSource(t, det),
		Classifier: matcher,
		Recognizer: recognizer.ConfigFromMetadata(matcher.Metadata(), 0.8),
		PluginDir:  t.TempDir(),
		Logger:     logging.Discard(),
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	defer a.Close()
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}

	hub := server.NewRecognitionHub(logging.Discard())
	defer hub.Close()
	a.Translator().Subscribe(hub.Publish)

	ts := httptest.NewServer(server.New(server.Config{
		Repository: repo,
		Translator: a,
		Hub:        hub,
		Logger:     logging.Discard(),
	}))
	defer ts.Close()
	client := ts.Client()

	t.Run("CorpusListed", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/actions")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var actions []struct {
			Action  string `json:"action"`
			Repeats int    `json:"repeats"`
		}
		json.NewDecoder(resp.Body).Decode(&actions)
		if len(actions) != 2 || actions[0].Action != "hello" || actions[1].Repeats != 1 {
			t.Errorf("actions = %+v", actions)
		}
	})

	t.Run("SignPublished", func(t *testing.T) {
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

		resp, err := client.Post(ts.URL+"/api/translator", "application/json", strings.NewReader(`{"enabled":true}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("toggle status = %d", resp.StatusCode)
		}

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var got recognizer.Decision
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if got.Label != "thanks" || got.Confidence < 0.8 || got.Frames < meta.MinSeqLen {
			t.Errorf("decision = %+v", got)
		}

		resp, err = client.Post(ts.URL+"/api/translator", "application/json", strings.NewReader(`{"enabled":false}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if a.IsEnabled() {
			t.Error("translator still enabled")
		}
		if last, ok := a.LastDecision(); !ok || last.Label != "thanks" {
			t.Errorf("LastDecision() = %+v, %v", last, ok)
		}
	})
}
