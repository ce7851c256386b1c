package snapshot

import (
	"context"

	"github.com/helixir/paper-etl/internal/domain"
	"github.com/helixir/paper-etl/internal/papersources"
)

// SourceName identifies snapshot replays in logs, metrics and run events.
const SourceName = "snapshot"

// FileSource replays one snapshot file as a record source. The fetch window
// is ignored: a snapshot is loaded in full.
type FileSource struct {
	Path string
}

var _ papersources.RecordSource = (*FileSource)(nil)

// NewFileSource creates a source for the snapshot at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Fetch loads the file.
func (s *FileSource) Fetch(ctx context.Context, _ papersources.FetchParams) ([]domain.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := Load(s.Path)
	if err != nil {
		return nil, err
	}
	return file.Papers, nil
}

// Name returns SourceName.
func (s *FileSource) Name() string {
	return SourceName
}
