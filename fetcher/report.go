package fetcher

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tie/mcfetch/graph"
)

type OutcomeKind string

const (
	Cached           OutcomeKind = "cached"
	Downloaded       OutcomeKind = "downloaded"
	Failed           OutcomeKind = "failed"
	Cancelled        OutcomeKind = "cancelled"
)

// Succeeded reports whether the object is in the cache after the run.
func (k OutcomeKind) Succeeded() bool {
	return k == Cached || k == Downloaded
}

// Outcome is the result of one task.
type Outcome struct {
	Task     graph.Task  `yaml:"task"`
	Kind     OutcomeKind `yaml:"outcome"`
	Attempts int         `yaml:"attempts,omitempty"`
	// Err is the last error of a failed task.
	Err   error  `yaml:"-"`
	Error string `yaml:"error,omitempty"`
}

// Report lists one outcome per task, in task order.
type Report struct {
	RunID    string    `yaml:"run_id"`
	Started  time.Time `yaml:"started"`
	Finished time.Time `yaml:"finished"`
	Outcomes []Outcome `yaml:"outcomes"`
}

// Get returns the outcome for the task with the given ID.
func (r *Report) Get(id string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Task.ID() == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// Failed returns the tasks to run again: every task that did not end up in
// the cache, cancelled ones included.
func (r *Report) Failed() []graph.Task {
	var tasks []graph.Task
	for _, o := range r.Outcomes {
		if !o.Kind.Succeeded() {
			tasks = append(tasks, o.Task)
		}
	}
	return tasks
}

func (r *Report) Counts() map[OutcomeKind]int {
	m := make(map[OutcomeKind]int)
	for _, o := range r.Outcomes {
		m[o.Kind]++
	}
	return m
}

func (r *Report) Write(w io.Writer) error {
	for i := range r.Outcomes {
		if o := &r.Outcomes[i]; o.Err != nil {
			o.Error = o.Err.Error()
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func ReadReport(r io.Reader) (*Report, error) {
	var rep Report
	if err := yaml.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}
