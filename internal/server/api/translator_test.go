package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/go-chi/chi/v5"
)

type fakeControl struct {
	enabled bool
	err     error
	last    *recognizer.Decision
}

func (f *fakeControl) SetEnabled(enabled bool) error {
	if f.err != nil {
		return f.err
	}
	f.enabled = enabled
	return nil
}

func (f *fakeControl) IsEnabled() bool { return f.enabled }

func (f *fakeControl) LastDecision() (recognizer.Decision, bool) {
	if f.last == nil {
		return recognizer.Decision{}, false
	}
	return *f.last, true
}

func serveTranslator(ctrl TranslatorControl, method, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewTranslatorHandler(ctrl, logging.Discard()).Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, "/translator", strings.NewReader(body)))
	return rec
}

func TestTranslatorHandler_Toggle(t *testing.T) {
	ctrl := &fakeControl{last: &recognizer.Decision{Label: "hello", Confidence: 0.9}}

	rec := serveTranslator(ctrl, http.MethodPost, `{"enabled": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp translatorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Enabled || resp.Last == nil || resp.Last.Label != "hello" {
		t.Errorf("response = %+v", resp)
	}

	rec = serveTranslator(ctrl, http.MethodGet, "")
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Enabled {
		t.Error("GET should report enabled")
	}
}

func TestTranslatorHandler_BadRequest(t *testing.T) {
	for _, body := range []string{"", "{", `{"on": true}`} {
		rec := serveTranslator(&fakeControl{}, http.MethodPost, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q status = %d, want 400", body, rec.Code)
		}
	}
}

func TestTranslatorHandler_Unavailable(t *testing.T) {
	rec := serveTranslator(&fakeControl{err: errors.New("no camera configured")}, http.MethodPost, `{"enabled": true}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != CodeUnavailable || resp.Error != "no camera configured" {
		t.Errorf("response = %+v", resp)
	}
}
