// Package itwin is a client for the iTwin IoT sensor-data API, the upstream
// source of piezometer readings.
package itwin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gsi-monitoring/piezosync/internal/httpx"
	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://api.bentley.com"
	// DefaultTokenURL is the OAuth token endpoint.
	DefaultTokenURL = "https://ims.bentley.com/connect/token"

	acceptHeader = "application/vnd.bentley.itwin-platform.v1+json"
)

// ErrNoData indicates the queried sensor has no observations in the
// requested range.
var ErrNoData = errors.New("no data for sensor in requested range")

// FetchToken acquires an OAuth access token via the client-credentials grant.
// It is invoked once at startup; the resolved token is passed to NewClient
// rather than kept in ambient state.
func FetchToken(ctx context.Context, httpClient *http.Client, tokenURL, clientID, clientSecret string) (string, error) {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("scope", "itwin-platform")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %s", resp.Status)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("token response contained no access_token")
	}
	return payload.AccessToken, nil
}

// IntegrationNode is one sensor integration node of the configured asset.
type IntegrationNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client queries sensor observations with a resolved bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	assetID    string
	breaker    *gobreaker.CircuitBreaker
}

// NewClient builds a sensor-data client. baseURL may be empty to use the
// production endpoint.
func NewClient(httpClient *http.Client, baseURL, token, assetID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
		assetID:    assetID,
		breaker:    httpx.NewBreaker("itwin"),
	}
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", acceptHeader)
}

// IntegrationNodes lists the sensor integration nodes of the configured
// asset.
func (c *Client) IntegrationNodes(ctx context.Context) ([]IntegrationNode, error) {
	params := url.Values{}
	params.Set("iTwinId", c.assetID)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/sensor-data/integrations/nodes?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := httpx.Do(ctx, c.httpClient, c.breaker, req, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("list integration nodes: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Nodes []IntegrationNode `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode nodes response: %w", err)
	}
	return payload.Nodes, nil
}

// Observations fetches a sensor's readings in [start, end). The start bound
// is inclusive on the upstream side. The returned batch holds fields "f"
// (frequency, digits) and "T" (temperature, C) in ascending timestamp order.
// A response without data is ErrNoData; transport failures propagate
// un-retried.
func (c *Client) Observations(ctx context.Context, sensorRef string, start, end time.Time) (*timeseries.Batch, error) {
	body, err := json.Marshal(map[string]interface{}{
		"sensorId":  sensorRef,
		"startDate": timeseries.FormatTime(start),
		"endDate":   timeseries.FormatTime(end),
		"units": map[string]string{
			"f": "digits",
			"T": "C",
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/sensor-data/data/observations", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpx.Do(ctx, c.httpClient, c.breaker, req, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("query observations for %s: %w", sensorRef, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Data map[string]struct {
			F *float64 `json:"f"`
			T *float64 `json:"T"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode observations response: %w", err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoData, sensorRef)
	}

	keys := make([]string, 0, len(payload.Data))
	for ts := range payload.Data {
		keys = append(keys, ts)
	}
	timeseries.SortKeys(keys)

	batch := timeseries.NewBatch()
	for _, ts := range keys {
		obs := payload.Data[ts]
		if obs.F == nil || obs.T == nil {
			return nil, fmt.Errorf("observation at %s is missing a field", ts)
		}
		batch.SetValue(ts, "f", *obs.F)
		batch.SetValue(ts, "T", *obs.T)
	}
	return batch, nil
}
