// Package output provides the interface, configuration and implementations
// of writers for the results of a run.
package output

import (
	"fmt"

	"github.com/jakopako/brandrank/internal/types"
)

// Writer defines the interface for all writers that are responsible
// for writing the results of a run to a specific output.
type Writer interface {
	Write(products []types.Product, stats types.RunStats) error
}

// WriterConfig defines the necessary parameters to make a new writer.
type WriterConfig struct {
	Type WriterType `yaml:"type"`
	// File is the destination of the file writer.
	File string `yaml:"file"`
}

// WriterType encapsulates the type of a writer
// See below constants for possible types
type WriterType string

const (
	STDOUT_WRITER_TYPE WriterType = "stdout"
	FILE_WRITER_TYPE   WriterType = "file"
)

// NewWriter returns a new writer depending on the writer type
func NewWriter(wc *WriterConfig) (Writer, error) {
	switch wc.Type {
	case STDOUT_WRITER_TYPE:
		return NewStdoutWriter(wc), nil
	case FILE_WRITER_TYPE:
		return NewFileWriter(wc)
	default:
		return nil, fmt.Errorf("writer of type '%s' not implemented", wc.Type)
	}
}
