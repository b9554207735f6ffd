package vocabulary

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
)

var labelHeader = []string{"Info", "Mentions"}

// FileStore keeps one <LABEL>.csv file per entity label in a directory. Each
// file starts with an Info,Mentions header.
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:    dir,
		logger: slog.Default().With("component", "vocabulary-files"),
	}
}

func (s *FileStore) TargetVocabulary(ctx context.Context) ([]string, error) {
	records, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	return rankTexts(records), nil
}

// Records reads every label file in the directory.
func (s *FileStore) Records(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrVocabularyUnavailable, s.dir, err)
	}
	var records []Record
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".csv" {
			continue
		}
		label := strings.TrimSuffix(entry.Name(), ".csv")
		recs, err := readLabelFile(filepath.Join(s.dir, entry.Name()), label)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrVocabularyUnavailable, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

func readLabelFile(path, label string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var records []Record
	for line := 0; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if line == 0 || len(row) == 0 || row[0] == "" {
			continue
		}
		mentions := 1
		if len(row) > 1 {
			if n, err := strconv.Atoi(strings.TrimSpace(row[1])); err == nil && n > 0 {
				mentions = n
			}
		}
		records = append(records, Record{Text: row[0], Label: label, Mentions: mentions})
	}
	return records, nil
}

// SaveEntities removes the existing label files and writes one file per
// label present in records.
func (s *FileStore) SaveEntities(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", s.dir, err)
	}
	if err := s.clean(); err != nil {
		return err
	}

	byLabel := make(map[string][]Record)
	for _, r := range records {
		if r.Text == "" {
			continue
		}
		label := r.Label
		if label == "" {
			label = "MISC"
		}
		byLabel[label] = append(byLabel[label], r)
	}
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	for _, label := range labels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeLabelFile(filepath.Join(s.dir, label+".csv"), byLabel[label]); err != nil {
			return err
		}
	}
	s.logger.Info("target entities saved", "count", len(records), "labels", len(labels), "dir", s.dir)
	return nil
}

func (s *FileStore) clean() error {
	return filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.dir {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".csv" {
			return os.Remove(path)
		}
		return nil
	})
}

func writeLabelFile(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, labelHeader)
	for _, r := range records {
		rows = append(rows, []string{r.Text, strconv.Itoa(max(r.Mentions, 1))})
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
