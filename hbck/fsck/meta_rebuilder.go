package fsck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/cluster"
	"github.com/dot2gua/hbase98learning/hbck/inventory"
	"github.com/dot2gua/hbase98learning/hbck/reconcile"
	"github.com/dot2gua/hbase98learning/hbck/region"
	"github.com/dot2gua/hbase98learning/hbck/stats"
	"github.com/dot2gua/hbase98learning/hbck/storage"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

type Phase int

const (
	PhaseGather Phase = iota
	PhaseValidate
	PhaseStage
	PhaseCommit
	PhaseSucceeded
	PhaseFailed
)

var phaseNames = []string{"GATHER", "VALIDATE", "STAGE", "COMMIT", "SUCCEEDED", "FAILED"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// TableResult is where the rebuild of one table ended. FailedIn is only
// meaningful when Phase is PhaseFailed.
type TableResult struct {
	Table      string
	Phase      Phase
	FailedIn   Phase                  `json:"-"`
	Err        error                  `json:"-"`
	Reason     string                 `json:",omitempty"`
	Staged     []*region.CatalogEntry `json:"-"`
	Rows       int
	Generation uint64 `json:",omitempty"`
	Committed  bool
	Sideline   string `json:",omitempty"`
}

func (r *TableResult) Succeeded() bool {
	return r.Phase == PhaseSucceeded
}

func (r *TableResult) fail(phase Phase, err error) *TableResult {
	r.Phase = PhaseFailed
	r.FailedIn = phase
	r.Err = err
	r.Reason = fmt.Sprintf("%s: %v", phase, err)
	return r
}

type RebuildResult struct {
	Tables []*TableResult
}

func (r *RebuildResult) Succeeded() bool {
	for _, t := range r.Tables {
		if !t.Succeeded() {
			return false
		}
	}
	return true
}

// MetaRebuilder derives the catalog rows of a table from its region
// directories. It needs the cluster to be down.
type MetaRebuilder struct {
	Catalog            *catalog.Catalog
	Filesystem         *storage.Scanner
	// asked for liveness before anything is written
	Cluster            *cluster.Scanner
	GatherRetries      int
	// lets an operator complete a commit that an earlier run left behind
	RetryPartialCommit bool
	// old rows are saved here as json lines before they are replaced
	Sideline           storage.FileSystem
	SidelineDir        string
	Owner              string
	Now                func() time.Time
}

func (m *MetaRebuilder) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Rebuild rebuilds the given tables, or every table found on the
// filesystem when none are given. Without fix nothing is written and each
// table stops after staging. A PreconditionFailure is returned, with no
// result, when the cluster looks alive or another rebuild holds the lock.
func (m *MetaRebuilder) Rebuild(ctx context.Context, fix bool, tables ...string) (*RebuildResult, error) {
	ctx = util.WithRunId(ctx)
	if err := m.checkClusterDown(ctx); err != nil {
		return nil, err
	}
	if m.Cluster != nil {
		owner := m.Owner
		if owner == "" {
			owner = "hbck-" + util.GetRunId(ctx)
		}
		unlock, err := m.Cluster.Coordinator.Lock(ctx, owner)
		if err != nil {
			return nil, &PreconditionFailure{Reason: "cannot take the hbck lock", Err: err}
		}
		defer unlock()
	}

	if len(tables) == 0 {
		if _, err := util.Retry(ctx, "list tables", m.GatherRetries, func() (err error) {
			tables, err = storage.ListTables(ctx, m.Filesystem.FS, m.Filesystem.Root)
			return
		}); err != nil {
			return nil, fmt.Errorf("list tables under %s: %w", m.Filesystem.Root, err)
		}
	}
	sort.Strings(tables)

	result := &RebuildResult{}
	for _, table := range tables {
		t := m.RebuildTable(ctx, table, fix)
		if t.Succeeded() {
			glog.V(0).Infof("%s rebuild %s: %s with %d rows", util.GetRunId(ctx), table, t.Phase, t.Rows)
		} else {
			glog.Errorf("%s rebuild %s failed in %s: %v", util.GetRunId(ctx), table, t.FailedIn, t.Err)
		}
		result.Tables = append(result.Tables, t)
	}
	return result, nil
}

// checkClusterDown fails when the coordinator reports an active cluster or
// still has region servers registered. Registered servers are scanned only to
// say why they block the rebuild.
func (m *MetaRebuilder) checkClusterDown(ctx context.Context) error {
	if m.Cluster == nil {
		return nil
	}
	active, err := m.Cluster.Coordinator.IsClusterActive(ctx)
	if err != nil {
		return &PreconditionFailure{Reason: "cannot tell whether the cluster is down", Err: err}
	}
	if active {
		return &PreconditionFailure{Reason: "cluster is active, shut it down before rebuilding the catalog"}
	}
	servers, err := m.Cluster.Coordinator.ListLiveServers(ctx)
	if err != nil {
		return &PreconditionFailure{Reason: "cannot list region servers", Err: err}
	}
	if len(servers) == 0 {
		return nil
	}
	deployment := m.Cluster.ScanServers(ctx, servers)
	switch open := deployment.OpenRegionCount(); {
	case open > 0:
		return &PreconditionFailure{Reason: fmt.Sprintf("%d regions are still open on %d servers", open, len(servers))}
	case len(deployment.ScanErrors) > 0:
		return &PreconditionFailure{
			Reason: fmt.Sprintf("%d of %d registered region servers cannot be reached", len(deployment.ScanErrors), len(servers)),
			Err:    deployment.ScanErrors[0],
		}
	default:
		return &PreconditionFailure{Reason: fmt.Sprintf("region servers %s are still registered", strings.Join(servers, ", "))}
	}
}

// RebuildTable runs GATHER, VALIDATE, STAGE and, with fix, COMMIT for one
// table. Failures are returned in the result; they never affect other tables.
func (m *MetaRebuilder) RebuildTable(ctx context.Context, table string, fix bool) *TableResult {
	result := &TableResult{Table: table}
	outcome := "failed"
	defer func() {
		stats.RebuildCounter.WithLabelValues(outcome).Inc()
	}()

	// GATHER
	result.Phase = PhaseGather
	var fs *inventory.Filesystem
	if _, err := util.Retry(ctx, "gather "+table, m.GatherRetries, func() (err error) {
		if fs, err = m.Filesystem.ScanTable(ctx, table); err != nil {
			return util.Permanent(err)
		}
		if scanErrors := fs.TableScanErrors(table); len(scanErrors) > 0 {
			return scanErrors[0]
		}
		return nil
	}); err != nil {
		return result.fail(PhaseGather, err)
	}

	// VALIDATE
	result.Phase = PhaseValidate
	descriptors := fs.Descriptors(table)
	if err := m.validate(ctx, table, fs, descriptors); err != nil {
		return result.fail(PhaseValidate, err)
	}

	// STAGE
	result.Phase = PhaseStage
	now := m.now()
	for _, d := range descriptors {
		result.Staged = append(result.Staged, region.NewCatalogEntry(d, "", region.StateUnassigned, now))
	}
	result.Rows = len(result.Staged)
	if !fix {
		outcome = "dry_run"
		result.Phase = PhaseSucceeded
		return result
	}

	// COMMIT runs to the end even if the caller gives up
	result.Phase = PhaseCommit
	commitCtx := context.WithoutCancel(ctx)
	if m.Sideline != nil && m.SidelineDir != "" {
		sideline, err := m.sideline(commitCtx, table)
		if err != nil {
			return result.fail(PhaseCommit, fmt.Errorf("sideline %s: %w", table, err))
		}
		result.Sideline = sideline
	}
	generation, err := m.Catalog.BulkReplaceRows(commitCtx, table, result.Staged)
	result.Generation = generation
	if err != nil {
		return result.fail(PhaseCommit, &CommitFailure{Table: table, Generation: generation, Err: err})
	}
	result.Committed = true
	result.Phase = PhaseSucceeded
	outcome = "succeeded"
	stats.RebuildRowsGauge.WithLabelValues(table).Set(float64(result.Rows))
	return result
}

func (m *MetaRebuilder) validate(ctx context.Context, table string, fs *inventory.Filesystem, descriptors []*region.Descriptor) error {
	if len(descriptors) == 0 {
		return &ValidationFailure{Table: table, Reason: "no region directories found"}
	}
	if violations := reconcile.CheckTiling(descriptors); len(violations) > 0 {
		return &ValidationFailure{Table: table, Violations: violations}
	}
	if len(fs.Degenerate) > 0 {
		return &ValidationFailure{Table: table,
			Reason: fmt.Sprintf("%d region directories without a readable descriptor, first %s: %s",
				len(fs.Degenerate), fs.Degenerate[0].Path, fs.Degenerate[0].Reason)}
	}

	markers, err := m.Catalog.ListMarkers(ctx)
	if err != nil {
		return fmt.Errorf("read commit markers: %w", err)
	}
	if generation, found := markers[table]; found {
		if !m.RetryPartialCommit {
			return &CommitFailure{Table: table, Generation: generation, Err: ErrPartialCommit}
		}
		glog.Warningf("%s completing the unfinished commit of %s at generation %d", util.GetRunId(ctx), table, generation)
	}
	return nil
}

type sidelineRow struct {
	RowKey     string
	Value      []byte
	Generation uint64 `json:",omitempty"`
}

// sideline saves the current rows of table so they can be restored by hand.
func (m *MetaRebuilder) sideline(ctx context.Context, table string) (string, error) {
	var buf bytes.Buffer
	encoder := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(&buf)
	var encodeErr error
	rows := 0
	if err := m.Catalog.ListRows(ctx, table, func(entry *region.CatalogEntry) bool {
		row := sidelineRow{RowKey: entry.RowKey, Generation: entry.Generation}
		if entry.DecodeErr == nil {
			row.Value = entry.EncodeValue()
		}
		if encodeErr = encoder.Encode(row); encodeErr != nil {
			return false
		}
		rows++
		return true
	}); err != nil {
		return "", err
	}
	if encodeErr != nil {
		return "", encodeErr
	}
	if err := m.Sideline.MkdirAll(ctx, m.SidelineDir); err != nil {
		return "", err
	}
	name := path.Join(m.SidelineDir, fmt.Sprintf("%s-%d.jsonl", table, m.now().UnixMilli()))
	if err := m.Sideline.WriteFile(ctx, name, buf.Bytes()); err != nil {
		return "", err
	}
	glog.V(0).Infof("%s sidelined %d rows of %s to %s", util.GetRunId(ctx), rows, table, name)
	return name, nil
}

// ReadSideline loads rows saved by a rebuild.
func ReadSideline(ctx context.Context, fsys storage.FileSystem, name string) ([]*region.CatalogEntry, error) {
	data, err := fsys.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	decoder := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(bytes.NewReader(data))
	var entries []*region.CatalogEntry
	for decoder.More() {
		var row sidelineRow
		if err := decoder.Decode(&row); err != nil {
			return entries, fmt.Errorf("read %s: %w", name, err)
		}
		if row.Value == nil {
			entries = append(entries, &region.CatalogEntry{RowKey: row.RowKey, DecodeErr: region.ErrMalformedEntry})
			continue
		}
		entry, err := region.DecodeCatalogEntry(row.RowKey, row.Value)
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// IsPrecondition reports whether err aborted the whole rebuild.
func IsPrecondition(err error) bool {
	var failure *PreconditionFailure
	return errors.As(err, &failure)
}
