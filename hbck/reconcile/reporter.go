package reconcile

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// ErrorReporter collects inconsistencies as the reconciler finds them.
// Implementations must be safe for concurrent use.
type ErrorReporter interface {
	Report(inconsistency *Inconsistency)
	Errors() []*Inconsistency
	Kinds() []ErrorKind
	Clear()
}

// CollectingReporter keeps every reported inconsistency in arrival order.
type CollectingReporter struct {
	mu     sync.Mutex
	errors []*Inconsistency
}

func NewCollectingReporter() *CollectingReporter {
	return &CollectingReporter{}
}

func (r *CollectingReporter) Report(inconsistency *Inconsistency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, inconsistency)
}

func (r *CollectingReporter) Errors() []*Inconsistency {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Inconsistency(nil), r.errors...)
}

func (r *CollectingReporter) Kinds() []ErrorKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]ErrorKind, 0, len(r.errors))
	for _, e := range r.errors {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *CollectingReporter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = nil
}

// Matches reports whether the reporter holds exactly the given kinds,
// ignoring order.
func Matches(reporter ErrorReporter, expected ...ErrorKind) bool {
	actual := reporter.Kinds()
	if len(actual) != len(expected) {
		return false
	}
	want := append([]ErrorKind(nil), expected...)
	sort.Slice(actual, func(i, j int) bool { return actual[i] < actual[j] })
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	for i := range actual {
		if actual[i] != want[i] {
			return false
		}
	}
	return true
}

// PrintingReporter writes each inconsistency as one line while collecting.
type PrintingReporter struct {
	CollectingReporter
	out     io.Writer
	verbose bool
}

func NewPrintingReporter(out io.Writer, verbose bool) *PrintingReporter {
	return &PrintingReporter{out: out, verbose: verbose}
}

func (r *PrintingReporter) Report(inconsistency *Inconsistency) {
	r.CollectingReporter.Report(inconsistency)
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "ERROR: %s\n", inconsistency)
	if r.verbose && inconsistency.Detail != "" {
		fmt.Fprintf(r.out, "\t%s\n", inconsistency.Detail)
	}
}
