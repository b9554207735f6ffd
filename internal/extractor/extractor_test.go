package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/resilience"
)

func TestHeuristicExtractor(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"lowercase only", "nothing to see here", nil},
		{"single", "shelling near Kyiv overnight", []string{"Kyiv"}},
		{"multi word", "talks with Volodymyr Zelensky began", []string{"Volodymyr Zelensky"}},
		{"connector", "the Ministry of Defence said", []string{"Ministry of Defence"}},
		{"dangling connector", "Ministry of state", []string{"Ministry"}},
		{"punctuation splits", "Kyiv, Lviv and Odesa", []string{"Kyiv", "Lviv", "Odesa"}},
		{"line splits", "NATO\nKyiv", []string{"NATO", "Kyiv"}},
		{"possessive", "Russia's army", []string{"Russia"}},
		{"repeats kept", "NATO met. NATO left.", []string{"NATO", "NATO"}},
	}
	h := NewHeuristicExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Extract(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			texts := Texts(got)
			if (len(texts) > 0 || len(tt.want) > 0) && !reflect.DeepEqual(texts, tt.want) {
				t.Fatalf("Extract(%q) = %q, want %q", tt.text, texts, tt.want)
			}
			for _, e := range got {
				if e.Label != LabelMisc {
					t.Fatalf("label = %q, want %q", e.Label, LabelMisc)
				}
			}
		})
	}
}

func TestHeuristicExtractorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHeuristicExtractor().Extract(ctx, "Kyiv"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestHTTPExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(extractResponse{Entities: []Entity{
			{Text: "Kyiv", Label: "GPE"},
			{Text: req.Text, Label: "ECHO"},
		}})
	}))
	defer srv.Close()

	e := NewHTTPExtractor(config.ExtractorConfig{Kind: "http", Endpoint: srv.URL, Timeout: time.Second}, srv.Client(), nil)
	got, err := e.Extract(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []Entity{{Text: "Kyiv", Label: "GPE"}, {Text: "hello", Label: "ECHO"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract = %+v, want %+v", got, want)
	}
}

func TestHTTPExtractorFailuresTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker("extractor-test", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	e := NewHTTPExtractor(config.ExtractorConfig{Endpoint: srv.URL, Timeout: time.Second}, srv.Client(), breaker)

	for i := 0; i < 2; i++ {
		if _, err := e.Extract(context.Background(), "x"); !errors.Is(err, apperrors.ErrExtractionFailed) {
			t.Fatalf("call %d: err = %v, want ErrExtractionFailed", i, err)
		}
	}
	_, err := e.Extract(context.Background(), "x")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("server calls = %d, want 2", calls.Load())
	}
	if e.Healthy(context.Background()) == nil {
		t.Fatal("Healthy should fail while the breaker is open")
	}
}

func TestNew(t *testing.T) {
	if _, err := New(config.ExtractorConfig{Kind: "heuristic"}, nil, nil); err != nil {
		t.Fatalf("heuristic: %v", err)
	}
	if _, err := New(config.ExtractorConfig{Kind: "http"}, nil, nil); err == nil {
		t.Fatal("http without endpoint should fail")
	}
	if _, err := New(config.ExtractorConfig{Kind: "spacy"}, nil, nil); err == nil {
		t.Fatal("unknown kind should fail")
	}
}
