// Package snapshot reads and writes JSON snapshots of fetched works.
//
// A snapshot is either a bare JSON array of works or an object of the form
//
//	{"metadata": {...}, "papers": [...]}
//
// Snapshots are written in the object form as ai_papers_YYYYMMDD_HHMMSS.json.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/helixir/paper-etl/internal/domain"
)

// SourceLabel is written to Metadata.Source.
const SourceLabel = "OpenAlex API"

// Metadata describes how a snapshot was produced.
type Metadata struct {
	Timestamp     string `json:"timestamp"`
	TotalPapers   int    `json:"total_papers"`
	DataRangeDays int    `json:"data_range_days"`
	Source        string `json:"source"`
}

// File is a decoded snapshot. Metadata is nil for bare-array snapshots.
// Elements of the papers array that are not objects are kept as nil records
// in Papers and counted in Malformed.
type File struct {
	Metadata  *Metadata
	Papers    []domain.RawRecord
	Malformed int
}

type fileJSON struct {
	Metadata *Metadata         `json:"metadata,omitempty"`
	Papers   []json.RawMessage `json:"papers"`
}

// Load reads the snapshot at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	file, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return file, nil
}

// Parse decodes a snapshot from r. Anything other than an array or an
// object with a papers array fails with domain.ErrInvalidSnapshot. A single
// element that is not an object does not fail the file.
func Parse(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidSnapshot)
	}

	var raws []json.RawMessage
	var meta *Metadata

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSnapshot, err)
		}
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSnapshot, err)
		}
		papers, ok := probe["papers"]
		if !ok {
			return nil, fmt.Errorf("%w: object without a papers key", domain.ErrInvalidSnapshot)
		}
		if err := json.Unmarshal(papers, &raws); err != nil {
			return nil, fmt.Errorf("%w: papers is not an array", domain.ErrInvalidSnapshot)
		}
		if m, ok := probe["metadata"]; ok && !bytes.Equal(bytes.TrimSpace(m), []byte("null")) {
			meta = &Metadata{}
			if err := json.Unmarshal(m, meta); err != nil {
				return nil, fmt.Errorf("%w: metadata: %v", domain.ErrInvalidSnapshot, err)
			}
		}
	default:
		return nil, fmt.Errorf("%w: expected a JSON array or object", domain.ErrInvalidSnapshot)
	}

	file := &File{Metadata: meta, Papers: make([]domain.RawRecord, 0, len(raws))}
	for _, raw := range raws {
		rec, err := domain.DecodeRawRecord(raw)
		if err != nil {
			file.Malformed++
		}
		file.Papers = append(file.Papers, rec)
	}
	return file, nil
}

// FileName returns the snapshot file name for now.
func FileName(now time.Time) string {
	return "ai_papers_" + now.Format("20060102_150405") + ".json"
}

// Encode writes records in the object form with metadata.
func Encode(w io.Writer, records []domain.RawRecord, days int, now time.Time) error {
	papers := records
	if papers == nil {
		papers = []domain.RawRecord{}
	}
	payload := struct {
		Metadata Metadata           `json:"metadata"`
		Papers   []domain.RawRecord `json:"papers"`
	}{
		Metadata: Metadata{
			Timestamp:     now.Format(time.RFC3339),
			TotalPapers:   len(records),
			DataRangeDays: days,
			Source:        SourceLabel,
		},
		Papers: papers,
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// Write creates dir if needed and writes a timestamped snapshot into it.
// It returns the path of the new file.
func Write(dir string, records []domain.RawRecord, days int, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}

	path := filepath.Join(dir, FileName(now))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating snapshot: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := Encode(bw, records, days, now); err != nil {
		f.Close()
		return "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing snapshot: %w", err)
	}
	return path, nil
}
