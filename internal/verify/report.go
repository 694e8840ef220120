package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// ErrCheckFailed is returned by Report.Err when at least one check did not pass
var ErrCheckFailed = errors.New("verification failed")

// Status is the outcome of one check
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusInfo  Status = "info"
	StatusError Status = "error"
)

// Result is the outcome of one check
type Result struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      Status        `json:"status"`
	Count       *int64        `json:"count,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// Report collects check results in catalogue order
type Report struct {
	Results []Result `json:"results"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
}

func newReport(results []Result) *Report {
	report := &Report{Results: results}
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			report.Passed++
		case StatusFail, StatusError:
			report.Failed++
		}
	}
	return report
}

// OK reports whether no check failed or errored
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Err wraps ErrCheckFailed with the failure count, or returns nil
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %d of %d checks", ErrCheckFailed, r.Failed, len(r.Results))
}

// WriteJSON writes the report as indented JSON
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes the report as an aligned table
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCHECK\tCOUNT\tDETAIL")
	for _, res := range r.Results {
		count := "-"
		if res.Count != nil {
			count = fmt.Sprintf("%d", *res.Count)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Status, res.Name, count, res.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d passed, %d failed, %d checks\n", r.Passed, r.Failed, len(r.Results))
	return err
}
