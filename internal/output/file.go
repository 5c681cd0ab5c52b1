package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jakopako/brandrank/internal/types"
)

// FileWriter represents a writer that writes to a json file
type FileWriter struct {
	*WriterConfig
	logger *slog.Logger
}

type results struct {
	Products []types.Product `json:"products"`
	Stats    types.RunStats  `json:"stats"`
}

// NewFileWriter returns a new FileWriter
func NewFileWriter(wc *WriterConfig) (*FileWriter, error) {
	if wc.File == "" {
		return nil, errors.New("file needs to be specified for the FileWriter")
	}
	if err := ensureDir(wc.File); err != nil {
		return nil, err
	}
	return &FileWriter{
		WriterConfig: wc,
		logger:       slog.With(slog.String("writer", string(FILE_WRITER_TYPE))),
	}, nil
}

func (w *FileWriter) Write(products []types.Product, stats types.RunStats) error {
	if products == nil {
		products = []types.Product{}
	}

	// json.MarshalIndent would replace characters like & and < with unicode
	// escapes, product names contain them.
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(results{Products: products, Stats: stats}); err != nil {
		return fmt.Errorf("error while encoding products: %w", err)
	}

	var indentBuffer bytes.Buffer
	if err := json.Indent(&indentBuffer, buffer.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("error while indenting json: %w", err)
	}
	if err := os.WriteFile(w.File, indentBuffer.Bytes(), 0644); err != nil {
		return fmt.Errorf("error while writing products json to file: %w", err)
	}
	w.logger.Info(fmt.Sprintf("wrote %d products to file %s", len(products), w.File))
	return nil
}

// WriteLines writes lines to file, one per line, as they were received.
func WriteLines(file string, lines []string) error {
	if err := ensureDir(file); err != nil {
		return err
	}
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("error while trying to open file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, l := range lines {
		bw.WriteString(l)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("error while writing lines to file: %w", err)
	}
	return nil
}

func ensureDir(file string) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
