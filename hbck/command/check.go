package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"

	"github.com/dot2gua/hbase98learning/hbck/cluster"
	"github.com/dot2gua/hbase98learning/hbck/fsck"
	"github.com/dot2gua/hbase98learning/hbck/reconcile"
	"github.com/dot2gua/hbase98learning/hbck/stats"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

func init() {
	cmdCheck.Run = runCheck // break init cycle
}

var cmdCheck = &Command{
	UsageLine: "check [-json] [-details] [-table=t1,t2] [-waitRIT=1m]",
	Short:     "report inconsistencies between the catalog, the filesystem and the live cluster",
	Long: `Check scans the catalog table, the region directories under the hbase root
  and every live region server, then classifies each region by where it is
  known. Scanning is read-only and safe against a running cluster; a region
  that is moving may show up as inconsistent, run the check again to confirm.

  The exit status is 1 when anything inconsistent was found.

  The stores, filesystem and coordinator are configured in hbck.toml,
  see "hbck scaffold".

  `,
}

type CheckOptions struct {
	json           *bool
	details        *bool
	tables         *string
	waitRIT        *time.Duration
	metricsAddress *string
}

var checkOptions CheckOptions

func init() {
	checkOptions.json = cmdCheck.Flag.Bool("json", false, "print the report as json")
	checkOptions.details = cmdCheck.Flag.Bool("details", false, "print details of every finding and every table")
	checkOptions.tables = cmdCheck.Flag.String("table", "", "comma separated tables to report, all tables if empty")
	checkOptions.waitRIT = cmdCheck.Flag.Duration("waitRIT", 0, "wait up to this long for regions in transition to settle before checking")
	checkOptions.metricsAddress = cmdCheck.Flag.String("metrics.address", "", "prometheus push gateway address to send metrics to at exit")
}

func runCheck(cmd *Command, args []string) bool {
	env, err := loadConfiguredEnvironment()
	if err != nil {
		glog.Errorf("check: %v", err)
		SetExitStatus(1)
		return true
	}
	defer env.close()
	defer stats.PushMetrics("hbck_check", util.GetViper().GetString("hbck.instance"), *checkOptions.metricsAddress)

	ctx := context.Background()
	if *checkOptions.waitRIT > 0 && env.coordinator != nil {
		waitCtx, cancel := context.WithTimeout(ctx, *checkOptions.waitRIT)
		if err := cluster.WaitForNoRegionsInTransition(waitCtx, env.coordinator, time.Second); err != nil {
			glog.Warningf("checking anyway: %v", err)
		}
		cancel()
	}

	clean, err := checkWith(ctx, env, splitTables(*checkOptions.tables), *checkOptions.json, *checkOptions.details, os.Stdout)
	if err != nil {
		glog.Errorf("check: %v", err)
		SetExitStatus(1)
		return true
	}
	if !clean {
		SetExitStatus(1)
	}
	return true
}

// checkWith runs one check and writes the report to out. It returns
// whether nothing inconsistent was found.
func checkWith(ctx context.Context, env *environment, tables []string, asJson, details bool, out io.Writer) (bool, error) {
	var reporter reconcile.ErrorReporter
	if asJson {
		reporter = reconcile.NewCollectingReporter()
	} else {
		reporter = reconcile.NewPrintingReporter(out, details)
	}
	checker := &fsck.Checker{
		Catalog:    env.catalogScanner(),
		Filesystem: env.filesystemScanner(),
		Cluster:    env.clusterScanner(),
		Reconciler: &reconcile.Reconciler{Tables: tables},
	}
	start := time.Now()
	report, err := checker.Check(ctx, reporter)
	if err != nil {
		return false, err
	}
	if asJson {
		return report.Clean(), writeJsonReport(out, report)
	}
	writeTextReport(out, report, details, time.Since(start))
	return report.Clean(), nil
}

func writeTextReport(out io.Writer, report *reconcile.Report, details bool, took time.Duration) {
	regions := 0
	violations := 0
	irrecoverable := 0
	for _, name := range report.TableNames() {
		table := report.Tables[name]
		regions += table.Regions
		violations += len(table.Tiling)
		irrecoverable += table.Irrecoverable
		for _, v := range table.Tiling {
			fmt.Fprintf(out, "ERROR: %s\n", v)
		}
		if details {
			fmt.Fprintf(out, "Table %s: %s on the filesystem, rebuildable %v\n",
				name, english.Plural(table.Regions, "region", ""), table.Rebuildable)
		}
	}
	if !report.DeploymentKnown {
		fmt.Fprintln(out, "Cluster is not running, deployment was not checked.")
	}

	counts := report.CountByKind()
	kinds := make([]reconcile.ErrorKind, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	fmt.Fprintf(out, "Summary: %s and %s in %s with %s, took %v\n",
		english.Plural(len(report.Inconsistencies), "inconsistency", "inconsistencies"),
		english.Plural(violations, "tiling violation", ""),
		english.Plural(len(report.Tables), "table", ""),
		english.Plural(regions, "region", ""),
		took.Round(time.Millisecond))
	for _, kind := range kinds {
		fmt.Fprintf(out, "  %-30s %s\n", kind, humanize.Comma(int64(counts[kind])))
	}
	if irrecoverable > 0 {
		fmt.Fprintf(out, "%s left no catalog row or region directory, rebuild cannot restore them.\n",
			english.Plural(irrecoverable, "finding", ""))
	}
	if report.Clean() {
		fmt.Fprintln(out, "Status: OK")
	} else {
		fmt.Fprintln(out, "Status: INCONSISTENT")
	}
}

type jsonTiling struct {
	Kind      reconcile.ErrorKind
	ReplicaId int32 `json:",omitempty"`
	StartKey  string
	EndKey    string
	Regions   []string
}

type jsonTable struct {
	Table         string
	Regions       int
	Rebuildable   bool
	Irrecoverable int          `json:",omitempty"`
	Tiling        []jsonTiling `json:",omitempty"`
}

type jsonReport struct {
	Status          string
	Errors          []string
	Inconsistencies []*reconcile.Inconsistency
	Tables          []jsonTable
	DeploymentKnown bool
}

// writeJsonReport prints one document; Errors lists every error code found,
// once per finding.
func writeJsonReport(out io.Writer, report *reconcile.Report) error {
	doc := jsonReport{
		Status:          "OK",
		Errors:          []string{},
		Inconsistencies: report.Inconsistencies,
		DeploymentKnown: report.DeploymentKnown,
	}
	if !report.Clean() {
		doc.Status = "INCONSISTENT"
	}
	for _, i := range report.Inconsistencies {
		doc.Errors = append(doc.Errors, i.Kind.String())
	}
	for _, name := range report.TableNames() {
		table := report.Tables[name]
		t := jsonTable{Table: name, Regions: table.Regions, Rebuildable: table.Rebuildable, Irrecoverable: table.Irrecoverable}
		for _, v := range table.Tiling {
			doc.Errors = append(doc.Errors, v.Kind.String())
			tiling := jsonTiling{Kind: v.Kind, ReplicaId: v.ReplicaId, StartKey: string(v.StartKey), EndKey: string(v.EndKey)}
			for _, key := range v.Regions {
				tiling.Regions = append(tiling.Regions, key.String())
			}
			t.Tiling = append(t.Tiling, tiling)
		}
		doc.Tables = append(doc.Tables, t)
	}
	encoder := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}
