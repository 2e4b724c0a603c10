// Package eagleio is a thin client for the Eagle.io workspace API, the
// destination time-series store. A datasource node holds one child node per
// stored parameter; uploads target the datasource, watermark reads walk its
// children.
package eagleio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gsi-monitoring/piezosync/internal/httpx"
	"github.com/gsi-monitoring/piezosync/internal/jts"
	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.eagle.io/api/v1"

// datasourceClass matches any datasource node class. Deliberately broader
// than the concrete Jts class so other datasource types resolve too.
const datasourceClass = "io.eagle.models.node.source.data"

var (
	// ErrNotFound indicates no datasource matched the requested name.
	ErrNotFound = errors.New("datasource not found")
	// ErrAmbiguous indicates more than one datasource matched the name.
	ErrAmbiguous = errors.New("multiple datasources found")
)

// Node is the reduced node representation the client requests.
type Node struct {
	ID          string `json:"_id"`
	Class       string `json:"_class"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
	ParentID    string `json:"parentId"`
}

// Point is a single historic sample; only the timestamp matters for
// watermark reads.
type Point struct {
	TS string `json:"ts"`
}

// Client talks to one Eagle.io workspace, authenticated by its API key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker
}

// NewClient builds a workspace client. baseURL may be empty to use the
// production endpoint.
func NewClient(httpClient *http.Client, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		breaker:    httpx.NewBreaker("eagleio"),
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := httpx.Do(ctx, c.httpClient, c.breaker, req, http.StatusOK)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Nodes lists all workspace nodes with a reduced attribute set.
func (c *Client) Nodes(ctx context.Context) ([]Node, error) {
	params := url.Values{}
	params.Set("attr", "_id,_class,name,workspaceId,parentId")

	var nodes []Node
	if err := c.get(ctx, "/nodes/", params, &nodes); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

// Node fetches a single node by id.
func (c *Client) Node(ctx context.Context, id string) (Node, error) {
	var node Node
	if err := c.get(ctx, "/nodes/"+id, nil, &node); err != nil {
		return Node{}, fmt.Errorf("get node %s: %w", id, err)
	}
	return node, nil
}

// DatasourceIDByName resolves a datasource node id from its name. The name is
// assumed unique within the workspace; zero matches is ErrNotFound and more
// than one is ErrAmbiguous.
func (c *Client) DatasourceIDByName(ctx context.Context, name string) (string, error) {
	params := url.Values{}
	params.Set("filter", fmt.Sprintf("name($eq:%s),_class($match:%s)", name, datasourceClass))

	var matches []Node
	if err := c.get(ctx, "/nodes/", params, &matches); err != nil {
		return "", fmt.Errorf("resolve datasource %q: %w", name, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	case 1:
		return matches[0].ID, nil
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		return "", fmt.Errorf("%w: %s matches %v", ErrAmbiguous, name, ids)
	}
}

// ChildNodeIDs returns the ids of all nodes whose parent is the given
// datasource. Each stored parameter of a datasource is one child node.
func (c *Client) ChildNodeIDs(ctx context.Context, datasourceID string) ([]string, error) {
	nodes, err := c.Nodes(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, n := range nodes {
		if n.ParentID == datasourceID {
			ids = append(ids, n.ID)
		}
	}
	return ids, nil
}

// LatestPointTimes fetches a bounded page of a node's most recent historic
// points ending at end and returns their timestamps. A node with no stored
// points yields an empty slice.
func (c *Client) LatestPointTimes(ctx context.Context, nodeID string, limit int, end time.Time) ([]time.Time, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("endTime", timeseries.FormatTime(end))

	var page struct {
		Data []Point `json:"data"`
	}
	if err := c.get(ctx, "/nodes/"+nodeID+"/historic", params, &page); err != nil {
		return nil, fmt.Errorf("query historic for node %s: %w", nodeID, err)
	}

	times := make([]time.Time, 0, len(page.Data))
	for _, p := range page.Data {
		t, err := timeseries.ParseTime(p.TS)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, nil
}

// UploadHistoric puts a JTS document onto a datasource. The server
// acknowledges asynchronously with 202: a successful call does not guarantee
// the data is readable before the next watermark query.
func (c *Client) UploadHistoric(ctx context.Context, datasourceID string, doc *jts.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal jts document: %w", err)
	}

	req, err := http.NewRequest(http.MethodPut, c.baseURL+"/nodes/"+datasourceID+"/historic", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpx.Do(ctx, c.httpClient, c.breaker, req, http.StatusAccepted)
	if err != nil {
		return fmt.Errorf("upload to datasource %s: %w", datasourceID, err)
	}
	resp.Body.Close()
	return nil
}

// LoadData resolves a datasource by name, converts the batch to JTS with the
// given schema, and uploads it.
func (c *Client) LoadData(ctx context.Context, name string, batch *timeseries.Batch, schema timeseries.Schema) error {
	datasourceID, err := c.DatasourceIDByName(ctx, name)
	if err != nil {
		return err
	}

	doc, err := jts.FromBatch(batch, schema)
	if err != nil {
		return err
	}

	return c.UploadHistoric(ctx, datasourceID, doc)
}
