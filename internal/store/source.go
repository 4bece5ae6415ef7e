package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/resilience"
)

// Source fetches the complete job collection.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]jobs.JobRecord, error)
}

// HTTPSource GETs the bulk endpoint. The body is either a JSON array of
// records or an object with a "jobs" array.
type HTTPSource struct {
	URL    string
	client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Fetch(ctx context.Context) ([]jobs.JobRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("fetching %s: unexpected status %d", s.URL, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}
	records, err := DecodeRecords(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.URL, err)
	}
	return records, nil
}

// FileSource reads the same JSON shapes as HTTPSource from disk.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Fetch(ctx context.Context) ([]jobs.JobRecord, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, resilience.Permanent(fmt.Errorf("opening %s: %w", s.Path, err))
		}
		return nil, fmt.Errorf("opening %s: %w", s.Path, err)
	}
	defer f.Close()
	records, err := DecodeRecords(f)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("decoding %s: %w", s.Path, err))
	}
	return records, nil
}

// DecodeRecords parses a bulk payload. Entries that are not objects or do
// not decode as a record are skipped with a warning rather than failing
// the whole payload.
func DecodeRecords(r io.Reader) ([]jobs.JobRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}

	var raw []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing record array: %w", err)
		}
	case '{':
		var envelope struct {
			Jobs []json.RawMessage `json:"jobs"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("parsing record envelope: %w", err)
		}
		raw = envelope.Jobs
	default:
		return nil, fmt.Errorf("payload is neither an array nor an object")
	}

	logger := slog.Default().With("component", "record-decoder")
	records := make([]jobs.JobRecord, 0, len(raw))
	for i, entry := range raw {
		entry = bytes.TrimSpace(entry)
		if len(entry) == 0 || entry[0] != '{' {
			logger.Warn("skipping non-object record", "position", i)
			continue
		}
		var rec jobs.JobRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			logger.Warn("skipping malformed record", "position", i, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
