// Package output renders analysis reports and batch results.
package output

import (
	"fmt"
	"io"

	"github.com/spiffcs/prlens/internal/pipeline"
	"github.com/spiffcs/prlens/internal/report"
)

// Format represents the output format
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use markdown, json or table)", s)
	}
}

// Extension returns the file extension used when writing reports to disk.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatTable:
		return ".txt"
	default:
		return ".md"
	}
}

// Formatter defines the interface for output formatters
type Formatter interface {
	FormatReport(r *report.AnalysisReport, w io.Writer) error
	FormatBatch(res pipeline.Result, w io.Writer) error
}

// NewFormatter creates a formatter for the specified format
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Pretty: true}
	case FormatTable:
		return &TableFormatter{}
	default:
		return &MarkdownFormatter{}
	}
}
