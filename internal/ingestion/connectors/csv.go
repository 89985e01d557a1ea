// Package connectors implements the Ingestion Engine's concrete
// SourceConnector/DestinationConnector pairs. Each type here satisfies
// internal/ingestion.SourceConnector/DestinationConnector structurally
// (same method signatures) without importing that package, avoiding an
// import cycle with the factory that constructs them.
package connectors

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

/* CSVSource streams one row at a time from a local CSV file, grounded on
   the header-driven column resolution of internal/vocabulary's CSV
   reader, but yielding rows lazily via Next rather than buffering the
   whole file like the donor's ReadAll-based parser did. */
type CSVSource struct {
	path      string
	delimiter rune
	file      *os.File
	reader    *csv.Reader
	header    []string
}

/* NewCSVSource builds a csvFile source connector from a ConnectorRef
   config: {"path": string, "delimiter": string (optional, default ",")}. */
func NewCSVSource(cfg map[string]interface{}) (*CSVSource, error) {
	path, _ := cfg["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("csvFile connector: missing required config key \"path\"")
	}
	delimiter := ','
	if d, ok := cfg["delimiter"].(string); ok && len(d) == 1 {
		delimiter = rune(d[0])
	}
	return &CSVSource{path: path, delimiter: delimiter}, nil
}

func (s *CSVSource) Open(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("csvFile connector: %w", err)
	}
	s.file = f
	s.reader = csv.NewReader(f)
	s.reader.Comma = s.delimiter
	s.reader.LazyQuotes = true

	header, err := s.reader.Read()
	if err != nil {
		f.Close()
		return fmt.Errorf("csvFile connector: read header: %w", err)
	}
	s.header = header
	return nil
}

func (s *CSVSource) Next(ctx context.Context) (map[string]interface{}, bool, error) {
	record, err := s.reader.Read()
	if err == io.EOF {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("csvFile connector: read row: %w", err)
	}

	row := make(map[string]interface{}, len(s.header))
	for i, col := range s.header {
		if i < len(record) {
			row[col] = record[i]
		}
	}
	return row, true, nil
}

func (s *CSVSource) Close(ctx context.Context) error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

/* ResolveCSVPath is the csvFile connector's resolver search order:
   an explicit "path" wins; otherwise "directory"+"filename" are joined.
   Exposed separately so the workflow preview step (schema inference over
   a sample) can resolve the same file the live connector will read. */
func ResolveCSVPath(cfg map[string]interface{}) (string, error) {
	if path, ok := cfg["path"].(string); ok && path != "" {
		return path, nil
	}
	dir, _ := cfg["directory"].(string)
	name, _ := cfg["filename"].(string)
	if dir != "" && name != "" {
		return dir + "/" + name, nil
	}
	return "", fmt.Errorf("csvFile connector: config must set \"path\" or \"directory\"+\"filename\"")
}
