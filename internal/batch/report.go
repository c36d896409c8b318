package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Status tags a per-file outcome
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Skip reasons
const (
	ReasonUnsupportedLanguage = "unsupported language"
	ReasonCancelled           = "run cancelled"
)

// Result is the outcome for one input file. DocID, Tokens and Elapsed are set
// for StatusSuccess, Error for StatusFailed and Reason for StatusSkipped.
type Result struct {
	Path    string  `json:"path" yaml:"path"`
	Status  Status  `json:"status" yaml:"status"`
	DocID   string  `json:"doc_id,omitempty" yaml:"doc_id,omitempty"`
	Tokens  int     `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	Elapsed float64 `json:"elapsed_seconds,omitempty" yaml:"elapsed_seconds,omitempty"`
	Error   string  `json:"error,omitempty" yaml:"error,omitempty"`
	Reason  string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Report aggregates a batch run. Results follow input order.
type Report struct {
	RunID            string   `json:"run_id" yaml:"run_id"`
	TotalFiles       int      `json:"total_files" yaml:"total_files"`
	Succeeded        int      `json:"succeeded" yaml:"succeeded"`
	Failed           int      `json:"failed" yaml:"failed"`
	Skipped          int      `json:"skipped" yaml:"skipped"`
	TotalTimeSeconds float64  `json:"total_time_seconds" yaml:"total_time_seconds"`
	TotalTokens      int      `json:"total_tokens" yaml:"total_tokens"`
	EstimatedCost    float64  `json:"estimated_cost" yaml:"estimated_cost"`
	Results          []Result `json:"results" yaml:"results"`
}

// Failures returns the failed results in input order
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// ReportFormat selects report serialization
type ReportFormat string

const (
	FormatJSON ReportFormat = "json"
	FormatYAML ReportFormat = "yaml"
	FormatText ReportFormat = "text"
)

// ErrUnknownReportFormat is returned by Write for unsupported formats
var ErrUnknownReportFormat = errors.New("unknown report format")

// ParseReportFormat validates a report format name
func ParseReportFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatText:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownReportFormat, s)
	}
}

// Write serializes the report to w
func (r *Report) Write(w io.Writer, format ReportFormat) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText:
		return r.writeText(w)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownReportFormat, format)
	}
}

func (r *Report) writeText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", r.RunID)
	fmt.Fprintf(tw, "Files:\t%d\n", r.TotalFiles)
	fmt.Fprintf(tw, "Succeeded:\t%d\n", r.Succeeded)
	fmt.Fprintf(tw, "Failed:\t%d\n", r.Failed)
	fmt.Fprintf(tw, "Skipped:\t%d\n", r.Skipped)
	fmt.Fprintf(tw, "Tokens:\t%d\n", r.TotalTokens)
	fmt.Fprintf(tw, "Estimated cost:\t$%.4f\n", r.EstimatedCost)
	fmt.Fprintf(tw, "Time:\t%.2fs\n", r.TotalTimeSeconds)
	if err := tw.Flush(); err != nil {
		return err
	}

	if failures := r.Failures(); len(failures) > 0 {
		if _, err := fmt.Fprintln(w, "\nFailures:"); err != nil {
			return err
		}
		for _, f := range failures {
			if _, err := fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Error); err != nil {
				return err
			}
		}
	}
	return nil
}
