package fsck

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dot2gua/hbase98learning/hbck/reconcile"
)

var ErrPartialCommit = errors.New("previous rebuild commit did not finish")

// PreconditionFailure aborts a whole rebuild before anything is written.
type PreconditionFailure struct {
	Reason string
	Err    error
}

func (e *PreconditionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precondition failed: %s: %v", e.Reason, e.Err)
	}
	return "precondition failed: " + e.Reason
}

func (e *PreconditionFailure) Unwrap() error {
	return e.Err
}

// ValidationFailure means the filesystem does not tile the key space of the
// table, so its catalog rows cannot be derived from it.
type ValidationFailure struct {
	Table      string
	Reason     string
	Violations []reconcile.TilingViolation
}

func (e *ValidationFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "table %s cannot be rebuilt", e.Table)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "; %s [%q,%q)", v.Kind, v.StartKey, v.EndKey)
	}
	return b.String()
}

// CommitFailure is a commit that did not finish, now or in an earlier run.
// The commit marker stays in the catalog until a rebuild completes it.
type CommitFailure struct {
	Table      string
	Generation uint64
	Err        error
}

func (e *CommitFailure) Error() string {
	return fmt.Sprintf("commit of table %s at generation %d: %v", e.Table, e.Generation, e.Err)
}

func (e *CommitFailure) Unwrap() error {
	return e.Err
}
