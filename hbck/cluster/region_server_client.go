package cluster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/dot2gua/hbase98learning/hbck/region"
)

const (
	RegionsPath = "/regions"
)

type RegionServerClient interface {
	// ListOpenRegions asks one server for the regions it has open.
	ListOpenRegions(ctx context.Context, server string) ([]*region.Descriptor, error)
}

// OpenRegion is the json form of a region on the /regions status page.
type OpenRegion struct {
	Table     string `json:"table"`
	StartKey  []byte `json:"startKey,omitempty"`
	EndKey    []byte `json:"endKey,omitempty"`
	RegionId  int64  `json:"regionId"`
	ReplicaId int32  `json:"replicaId,omitempty"`
}

type RegionsResponse struct {
	Server  string        `json:"server"`
	Regions []*OpenRegion `json:"regions"`
}

func NewRegionsResponse(server string, descriptors []*region.Descriptor) *RegionsResponse {
	resp := &RegionsResponse{Server: server, Regions: []*OpenRegion{}}
	for _, d := range descriptors {
		resp.Regions = append(resp.Regions, &OpenRegion{
			Table:     d.Table,
			StartKey:  d.StartKey,
			EndKey:    d.EndKey,
			RegionId:  d.RegionId,
			ReplicaId: d.ReplicaId,
		})
	}
	return resp
}

// HttpRegionServerClient reads the json status page of region servers.
type HttpRegionServerClient struct {
	Client *http.Client
}

func NewHttpRegionServerClient(timeout time.Duration) *HttpRegionServerClient {
	return &HttpRegionServerClient{
		Client: &http.Client{Timeout: timeout},
	}
}

func (c *HttpRegionServerClient) ListOpenRegions(ctx context.Context, server string) ([]*region.Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+server+RegionsPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s%s: %w", server, RegionsPath, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s%s: %s", server, RegionsPath, resp.Status)
	}

	var regions RegionsResponse
	if err = jsoniter.Unmarshal(body, &regions); err != nil {
		return nil, fmt.Errorf("decode %s%s: %w", server, RegionsPath, err)
	}

	var descriptors []*region.Descriptor
	for _, r := range regions.Regions {
		descriptors = append(descriptors, &region.Descriptor{
			Table:     r.Table,
			StartKey:  nonEmpty(r.StartKey),
			EndKey:    nonEmpty(r.EndKey),
			RegionId:  r.RegionId,
			ReplicaId: r.ReplicaId,
		})
	}
	return descriptors, nil
}

func nonEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

// RegionsHandler serves the /regions status page from list.
func RegionsHandler(server string, list func() []*region.Descriptor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := jsoniter.Marshal(NewRegionsResponse(server, list()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})
}
