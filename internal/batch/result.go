package batch

import "time"

const NoFilesMessage = "no files to process"

// Record is the outcome of one file within a run.
type Record struct {
	Name      string
	Source    string
	Relocated string
	Accepted  bool
	ErrorText string
	// ErrorLog is the error artifact path; empty for accepted files.
	ErrorLog string
}

// Result aggregates one run. Succeeded and Failed keep queue order.
type Result struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Succeeded []string
	Failed    []string
	Records   []Record
	// Note replaces the report body when the queue was empty.
	Note string
}

func newResult(runID string, started time.Time) *Result {
	return &Result{RunID: runID, Started: started}
}

func (r *Result) add(rec Record) {
	r.Records = append(r.Records, rec)
	if rec.Accepted {
		r.Succeeded = append(r.Succeeded, rec.Name)
	} else {
		r.Failed = append(r.Failed, rec.Name)
	}
}

// Empty reports whether the run had nothing to do.
func (r *Result) Empty() bool { return r.Note != "" && len(r.Records) == 0 }

// FailedRecords returns the records of failed files in queue order.
func (r *Result) FailedRecords() []Record {
	var out []Record
	for _, rec := range r.Records {
		if !rec.Accepted {
			out = append(out, rec)
		}
	}
	return out
}

// EmptyResult is the result of a run whose queue had no files.
func EmptyResult(runID string, at time.Time) *Result {
	r := newResult(runID, at)
	r.Finished = at
	r.Note = NoFilesMessage
	return r
}
