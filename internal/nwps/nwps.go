// Package nwps pulls river stage data from the NOAA National Water
// Prediction Service API and from the historical flat file kept alongside it
// (the public API does not serve history).
package nwps

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/gsi-monitoring/piezosync/internal/httpx"
	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.water.noaa.gov/nwps/v1"

// Client queries gauge observations. The NWPS API is public; no auth.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
}

// NewClient builds a gauge client. baseURL may be empty to use the
// production endpoint.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		breaker:    httpx.NewBreaker("nwps"),
	}
}

// ObservedStage fetches the gauge's observed stage series as a
// water_elevation batch. Points with negative primary values represent
// invalid or non-existent water levels and are dropped.
func (c *Client) ObservedStage(ctx context.Context, gaugeID string) (*timeseries.Batch, error) {
	url := fmt.Sprintf("%s/gauges/%s/stageflow/observed", c.baseURL, gaugeID)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpx.Do(ctx, c.httpClient, c.breaker, req, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("query gauge %s: %w", gaugeID, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Data []struct {
			ValidTime string  `json:"validTime"`
			Primary   float64 `json:"primary"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode gauge response: %w", err)
	}

	batch := timeseries.NewBatch()
	for _, point := range payload.Data {
		if point.Primary < 0 {
			continue
		}
		batch.SetValue(point.ValidTime, "water_elevation", point.Primary)
	}
	return batch, nil
}

// ReadManualFile loads historical water elevations from the flat file. Each
// line after the header is "date,elevation,flag" with a space-separated
// local-format date that is rewritten to the wire layout.
func ReadManualFile(path string) (*timeseries.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	batch := timeseries.NewBatch()
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false // header
			continue
		}
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed line %q in %s", line, path)
		}

		elevation, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse elevation in line %q: %w", line, err)
		}

		ts := strings.Replace(strings.TrimSpace(parts[0]), " ", "T", 1) + ".000Z"
		batch.SetValue(ts, "water_elevation", elevation)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return batch, nil
}
