package learning

import (
	"errors"
	"fmt"

	"github.com/oceanbase/agentmem-go/pkg/core"
)

// StepError is a failed write of one learning step.
type StepError struct {
	Kind core.Kind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("learn %s: %v", e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// LearnReport describes the outcome of one learning event.
type LearnReport struct {
	AgentID string

	// Stored maps each kind to the IDs written for it, in write order.
	Stored map[core.Kind][]int64

	Errors []*StepError
}

func newLearnReport(agentID string) *LearnReport {
	return &LearnReport{AgentID: agentID, Stored: make(map[core.Kind][]int64)}
}

func (r *LearnReport) record(kind core.Kind, id int64, err error) {
	if err != nil {
		r.Errors = append(r.Errors, &StepError{Kind: kind, Err: err})
		return
	}
	r.Stored[kind] = append(r.Stored[kind], id)
}

// Failed reports whether any step failed.
func (r *LearnReport) Failed() bool {
	return len(r.Errors) > 0
}

// Err joins the step errors, or returns nil when every step succeeded.
func (r *LearnReport) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// StoredCount is the total number of entries written.
func (r *LearnReport) StoredCount() int {
	n := 0
	for _, ids := range r.Stored {
		n += len(ids)
	}
	return n
}
