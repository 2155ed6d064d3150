package fleet

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Tagline is what a healthy Elasticsearch node answers on its root endpoint.
const Tagline = "You Know, for Search"

// ClusterInfo is the response of GET / on an Elasticsearch node.
type ClusterInfo struct {
	Name        string `json:"name"`
	ClusterName string `json:"cluster_name"`
	ClusterUUID string `json:"cluster_uuid"`
	Version     struct {
		Number string `json:"number"`
	} `json:"version"`
	Tagline string `json:"tagline"`
}

// ClusterInfo fetches the root endpoint. The client must point at the
// Elasticsearch URL, usually with the stack CA as CAFile.
func (c *Client) ClusterInfo(ctx context.Context) (*ClusterInfo, error) {
	var info ClusterInfo
	if err := c.do(ctx, http.MethodGet, "/", nil, &info); err != nil {
		return nil, errors.Wrap(err, "query elasticsearch")
	}
	return &info, nil
}

// CheckElasticsearch reports whether the node is up and answering with the
// expected tagline.
func (c *Client) CheckElasticsearch(ctx context.Context) (*ClusterInfo, error) {
	info, err := c.ClusterInfo(ctx)
	if err != nil {
		return nil, err
	}
	if info.Tagline != Tagline {
		return info, errors.Newf("unexpected tagline %q from %s", info.Tagline, c.base)
	}
	return info, nil
}
