package vocabulary

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/extractor"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/postgres"
)

type fakeExtractor struct {
	entities []extractor.Entity
	err      error
}

func (f fakeExtractor) Extract(context.Context, string) ([]extractor.Entity, error) {
	return f.entities, f.err
}

func TestExtractTargets(t *testing.T) {
	ext := fakeExtractor{entities: []extractor.Entity{
		{Text: "Kyiv", Label: "GPE"},
		{Text: "Zelensky", Label: "PERSON"},
		{Text: "Kyiv", Label: "GPE"},
		{Text: "  ", Label: "GPE"},
		{Text: "Kyiv", Label: "ORG"},
	}}
	got, err := ExtractTargets(context.Background(), ext, "statement")
	if err != nil {
		t.Fatalf("ExtractTargets: %v", err)
	}
	want := []Record{
		{Text: "Kyiv", Label: "GPE", Mentions: 2},
		{Text: "Zelensky", Label: "PERSON", Mentions: 1},
		{Text: "Kyiv", Label: "ORG", Mentions: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractTargets = %+v, want %+v", got, want)
	}
}

func TestExtractTargetsEmptyStatement(t *testing.T) {
	got, err := ExtractTargets(context.Background(), fakeExtractor{err: errors.New("unused")}, "  \n")
	if err != nil || got != nil {
		t.Fatalf("ExtractTargets = %v, %v; want nil, nil", got, err)
	}
}

func TestExtractTargetsExtractorError(t *testing.T) {
	_, err := ExtractTargets(context.Background(), fakeExtractor{err: apperrors.ErrExtractionFailed}, "Kyiv")
	if !errors.Is(err, apperrors.ErrExtractionFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestRankTexts(t *testing.T) {
	got := rankTexts([]Record{
		{Text: "b", Mentions: 1},
		{Text: "a", Mentions: 1},
		{Text: "c", Mentions: 3},
		{Text: "a", Label: "ORG", Mentions: 3},
		{Text: "", Mentions: 9},
	})
	want := []string{"a", "c", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rankTexts = %v, want %v", got, want)
	}
}

func TestStaticStore(t *testing.T) {
	s := NewStaticStore([]string{"Kyiv", "", "NATO"})
	got, err := s.TargetVocabulary(context.Background())
	if err != nil {
		t.Fatalf("TargetVocabulary: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Kyiv", "NATO"}) {
		t.Fatalf("TargetVocabulary = %v", got)
	}
	got[0] = "mutated"
	again, _ := s.TargetVocabulary(context.Background())
	if again[0] != "Kyiv" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "target_info_files")
	s := NewFileStore(dir)
	records := []Record{
		{Text: "Kyiv", Label: "GPE", Mentions: 2},
		{Text: "Volodymyr Zelensky", Label: "PERSON", Mentions: 3},
		{Text: "Kyiv, Ukraine", Label: "GPE", Mentions: 1},
	}
	if err := s.SaveEntities(context.Background(), records); err != nil {
		t.Fatalf("SaveEntities: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "GPE.csv"))
	if err != nil {
		t.Fatalf("reading label file: %v", err)
	}
	wantFile := "Info,Mentions\nKyiv,2\n\"Kyiv, Ukraine\",1\n"
	if string(raw) != wantFile {
		t.Fatalf("GPE.csv =\n%s\nwant\n%s", raw, wantFile)
	}

	got, err := s.TargetVocabulary(context.Background())
	if err != nil {
		t.Fatalf("TargetVocabulary: %v", err)
	}
	want := []string{"Volodymyr Zelensky", "Kyiv", "Kyiv, Ukraine"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TargetVocabulary = %v, want %v", got, want)
	}

	if err := s.SaveEntities(context.Background(), []Record{{Text: "NATO", Label: "ORG"}}); err != nil {
		t.Fatalf("second SaveEntities: %v", err)
	}
	got, _ = s.TargetVocabulary(context.Background())
	if !reflect.DeepEqual(got, []string{"NATO"}) {
		t.Fatalf("after replace = %v, want [NATO]", got)
	}
}

func TestFileStoreMissingDirectory(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent"))
	_, err := s.TargetVocabulary(context.Background())
	if !errors.Is(err, apperrors.ErrVocabularyUnavailable) {
		t.Fatalf("err = %v, want ErrVocabularyUnavailable", err)
	}
}

func TestFileStoreIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ORG.csv"), []byte("Info,Mentions\nNATO,4\nUN,notanumber\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("Kyiv"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileStore(dir).TargetVocabulary(context.Background())
	if err != nil {
		t.Fatalf("TargetVocabulary: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"NATO", "UN"}) {
		t.Fatalf("TargetVocabulary = %v", got)
	}
}

// TestPostgresStore runs against a live database when OSR_TEST_POSTGRES_HOST
// is set.
func TestPostgresStore(t *testing.T) {
	host := os.Getenv("OSR_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("OSR_TEST_POSTGRES_HOST not set")
	}
	cfg := config.Default().Postgres
	cfg.Host = host
	client, err := postgres.New(cfg)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer client.Close()
	ctx := context.Background()
	if err := client.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	s := NewPostgresStore(client)
	if err := s.SaveEntities(ctx, []Record{
		{Text: "Kyiv", Label: "GPE", Mentions: 1},
		{Text: "NATO", Label: "ORG", Mentions: 4},
	}); err != nil {
		t.Fatalf("SaveEntities: %v", err)
	}
	got, err := s.TargetVocabulary(ctx)
	if err != nil {
		t.Fatalf("TargetVocabulary: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"NATO", "Kyiv"}) {
		t.Fatalf("TargetVocabulary = %v", got)
	}
}
