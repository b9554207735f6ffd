package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/source"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
)

type fixedClassifier map[string]classifyResponse

func (f fixedClassifier) Classify(_ context.Context, text string) (string, float64, error) {
	r, ok := f[text]
	if !ok {
		return "", 0, apperrors.ErrClassificationFailed
	}
	return r.Label, r.Score, nil
}

func TestAssessBiasThreshold(t *testing.T) {
	a := NewAnnotator(fixedClassifier{
		"calm":    {Label: "neutral", Score: 0.99},
		"angry":   {Label: "negative", Score: 0.95},
		"unsure":  {Label: "negative", Score: 0.6},
		"exactly": {Label: "positive", Score: 0.9},
	}, 0.9, 1)

	tests := []struct {
		text   string
		biased bool
	}{
		{"calm", false},
		{"angry", true},
		{"unsure", false},
		{"exactly", false},
	}
	for _, tt := range tests {
		s, err := a.Assess(context.Background(), tt.text)
		if err != nil {
			t.Fatalf("Assess(%q): %v", tt.text, err)
		}
		if s.Biased != tt.biased {
			t.Errorf("Assess(%q).Biased = %v, want %v", tt.text, s.Biased, tt.biased)
		}
	}
}

func TestAnnotateKeepsScoreAndOrder(t *testing.T) {
	a := NewAnnotator(fixedClassifier{
		"Shelling in Kyiv": {Label: "negative", Score: 0.97},
		"Summit agenda":    {Label: "neutral", Score: 0.8},
	}, 0.9, 4)
	in := []source.Source{
		{URL: "a", Title: "Shelling in Kyiv", Score: 30},
		{URL: "b", Title: "", Description: "Summit agenda", Score: 20},
		{URL: "c", Title: "unknown headline", Score: 10},
		{URL: "d", Score: 5},
	}
	out := a.Annotate(context.Background(), in)

	for i := range in {
		if out[i].URL != in[i].URL || out[i].Score != in[i].Score {
			t.Fatalf("position %d changed: %+v", i, out[i])
		}
		if in[i].Sentiment != nil {
			t.Fatal("input mutated")
		}
	}
	if out[0].Sentiment == nil || !out[0].Sentiment.Biased {
		t.Fatalf("a: %+v", out[0].Sentiment)
	}
	if out[1].Sentiment == nil || out[1].Sentiment.Label != LabelNeutral {
		t.Fatalf("b: %+v", out[1].Sentiment)
	}
	if out[2].Sentiment != nil || out[3].Sentiment != nil {
		t.Fatal("unclassified sources should stay unannotated")
	}
}

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req classifyRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Text == "boom" {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(classifyResponse{Label: "NEGATIVE", Score: 0.93})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(config.SentimentConfig{Endpoint: srv.URL, Timeout: time.Second}, srv.Client(), nil)
	label, score, err := c.Classify(context.Background(), "Kyiv shelled")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if label != "negative" || score != 0.93 {
		t.Fatalf("Classify = %q %v", label, score)
	}
	if _, _, err := c.Classify(context.Background(), "boom"); !errors.Is(err, apperrors.ErrClassificationFailed) {
		t.Fatalf("err = %v, want ErrClassificationFailed", err)
	}
}
