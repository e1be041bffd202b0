package command

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"

	"github.com/dot2gua/hbase98learning/hbck/fsck"
	"github.com/dot2gua/hbase98learning/hbck/stats"
	"github.com/dot2gua/hbase98learning/hbck/storage"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

func init() {
	cmdRebuild.Run = runRebuild // break init cycle
}

var cmdRebuild = &Command{
	UsageLine: "rebuild [-fix] [-table=t1,t2] [-sideline=/tmp/hbck]",
	Short:     "rebuild the catalog from the region directories of a stopped cluster",
	Long: `Rebuild reads the region directories of each table and replaces the catalog
  rows of the table with one unassigned row per region, so the regions get
  assigned when the cluster starts again.

  The cluster must be shut down. A table whose regions do not cover the whole
  key space exactly once is left alone and reported as FAILED, other tables
  are still rebuilt.

  Without -fix nothing is written and the planned rows are only counted.

  If a previous rebuild was interrupted while writing, the table is reported
  as FAILED until the rebuild is run again with -retryPartialCommit.

  `,
}

type RebuildOptions struct {
	fix                *bool
	tables             *string
	retryPartialCommit *bool
	sideline           *string
	metricsAddress     *string
}

var rebuildOptions RebuildOptions

func init() {
	rebuildOptions.fix = cmdRebuild.Flag.Bool("fix", false, "write the rebuilt rows to the catalog")
	rebuildOptions.tables = cmdRebuild.Flag.String("table", "", "comma separated tables to rebuild, every table on the filesystem if empty")
	rebuildOptions.retryPartialCommit = cmdRebuild.Flag.Bool("retryPartialCommit", false, "complete a rebuild that an earlier run left unfinished")
	rebuildOptions.sideline = cmdRebuild.Flag.String("sideline", "", "local directory to save the replaced catalog rows to")
	rebuildOptions.metricsAddress = cmdRebuild.Flag.String("metrics.address", "", "prometheus push gateway address to send metrics to at exit")
}

func runRebuild(cmd *Command, args []string) bool {
	env, err := loadConfiguredEnvironment()
	if err != nil {
		glog.Errorf("rebuild: %v", err)
		SetExitStatus(1)
		return true
	}
	defer env.close()
	defer stats.PushMetrics("hbck_rebuild", util.GetViper().GetString("hbck.instance"), *rebuildOptions.metricsAddress)

	var sideline storage.FileSystem
	if *rebuildOptions.sideline != "" {
		sideline = storage.NewOsFileSystem()
	}
	ok, err := rebuildWith(context.Background(), env, rebuildRequest{
		tables:             splitTables(*rebuildOptions.tables),
		fix:                *rebuildOptions.fix,
		retryPartialCommit: *rebuildOptions.retryPartialCommit,
		sideline:           sideline,
		sidelineDir:        util.ResolvePath(*rebuildOptions.sideline),
	}, os.Stdout)
	if err != nil {
		glog.Errorf("rebuild: %v", err)
		fmt.Fprintf(os.Stdout, "FAILED: %v\n", err)
		SetExitStatus(1)
		return true
	}
	if !ok {
		SetExitStatus(1)
	}
	return true
}

type rebuildRequest struct {
	tables             []string
	fix                bool
	retryPartialCommit bool
	sideline           storage.FileSystem
	sidelineDir        string
}

// rebuildWith prints one line per table and returns whether every table
// succeeded. An error aborted the whole run before anything was written.
func rebuildWith(ctx context.Context, env *environment, req rebuildRequest, out io.Writer) (bool, error) {
	rebuilder := &fsck.MetaRebuilder{
		Catalog:            env.catalog,
		Filesystem:         env.filesystemScanner(),
		Cluster:            env.clusterScanner(),
		GatherRetries:      env.retries,
		RetryPartialCommit: req.retryPartialCommit,
		Sideline:           req.sideline,
		SidelineDir:        req.sidelineDir,
	}
	if rebuilder.Cluster == nil {
		glog.Warningf("no coordinator configured, cannot verify that the cluster is down")
	}
	result, err := rebuilder.Rebuild(ctx, req.fix, req.tables...)
	if err != nil {
		return false, err
	}

	for _, t := range result.Tables {
		switch {
		case !t.Succeeded():
			fmt.Fprintf(out, "%s\t%s\t%s\n", t.Table, t.Phase, t.Reason)
		case t.Committed:
			fmt.Fprintf(out, "%s\t%s\twrote %s rows at generation %d\n", t.Table, t.Phase, humanize.Comma(int64(t.Rows)), t.Generation)
			if t.Sideline != "" {
				fmt.Fprintf(out, "%s\t\told rows saved to %s\n", t.Table, t.Sideline)
			}
		default:
			fmt.Fprintf(out, "%s\t%s\twould write %s rows\n", t.Table, t.Phase, humanize.Comma(int64(t.Rows)))
		}
	}
	if !req.fix {
		fmt.Fprintln(out, "Dry run, nothing was written. Run again with -fix to write the catalog.")
	}
	return result.Succeeded(), nil
}
