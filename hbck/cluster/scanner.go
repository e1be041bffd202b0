package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/dot2gua/hbase98learning/hbck/inventory"
	"github.com/dot2gua/hbase98learning/hbck/region"
	"github.com/dot2gua/hbase98learning/hbck/stats"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

// Scanner collects what every live region server reports as open.
type Scanner struct {
	Coordinator Coordinator
	Client      RegionServerClient
	Workers     int
	Retries     int
	Timeout     time.Duration
}

// Scan returns inventory.Absent() when no cluster is running. Otherwise
// each live server is asked independently; an unreachable server is
// recorded as a ScanError and the others still count.
func (s *Scanner) Scan(ctx context.Context) (*inventory.Deployment, error) {
	start := time.Now()
	defer func() {
		stats.ScanHistogram.WithLabelValues(inventory.SourceCluster).Observe(time.Since(start).Seconds())
	}()

	active, err := s.Coordinator.IsClusterActive(ctx)
	if err != nil {
		stats.ScanErrorCounter.WithLabelValues(inventory.SourceCluster).Inc()
		return nil, &inventory.ScanError{Source: inventory.SourceCluster, Unit: "coordinator", Attempts: 1, Err: err}
	}
	if !active {
		glog.V(1).Infof("%s cluster is offline, deployment unknown", util.GetRunId(ctx))
		return inventory.Absent(), nil
	}

	servers, err := s.Coordinator.ListLiveServers(ctx)
	if err != nil {
		stats.ScanErrorCounter.WithLabelValues(inventory.SourceCluster).Inc()
		return nil, &inventory.ScanError{Source: inventory.SourceCluster, Unit: "coordinator", Attempts: 1, Err: err}
	}
	return s.ScanServers(ctx, servers), nil
}

// ScanServers asks the given servers regardless of the coordinator state.
func (s *Scanner) ScanServers(ctx context.Context, servers []string) *inventory.Deployment {
	deployment := inventory.NewDeployment(servers)

	g := new(errgroup.Group)
	g.SetLimit(max(s.Workers, 1))
	for _, server := range servers {
		g.Go(func() error {
			var descriptors []*region.Descriptor
			attempts, err := util.Retry(ctx, "list regions on "+server, s.Retries, func() (err error) {
				descriptors, err = util.CallWithTimeout(ctx, s.Timeout, func(ctx context.Context) ([]*region.Descriptor, error) {
					return s.Client.ListOpenRegions(ctx, server)
				})
				return err
			})
			if err != nil {
				scanErr := &inventory.ScanError{Source: inventory.SourceCluster, Unit: server, Attempts: attempts,
					Err: fmt.Errorf("unreachable: %w", err)}
				glog.Warningf("%v", scanErr)
				stats.ScanErrorCounter.WithLabelValues(inventory.SourceCluster).Inc()
				deployment.AddScanError(scanErr)
				return nil
			}
			for _, d := range descriptors {
				deployment.Add(server, d)
			}
			return nil
		})
	}
	g.Wait()

	glog.V(1).Infof("%s %d servers report %d open regions", util.GetRunId(ctx), len(servers), deployment.OpenRegionCount())
	return deployment
}

// WaitForNoRegionsInTransition polls until no region is in transition, so a
// check after a restart does not report regions that are still opening.
func WaitForNoRegionsInTransition(ctx context.Context, coordinator Coordinator, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		transitions, err := coordinator.ListRegionsInTransition(ctx)
		if err != nil {
			return err
		}
		if len(transitions) == 0 {
			return nil
		}
		glog.V(0).Infof("waiting for %d regions in transition", len(transitions))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d regions still in transition: %w", len(transitions), ctx.Err())
		case <-ticker.C:
		}
	}
}
