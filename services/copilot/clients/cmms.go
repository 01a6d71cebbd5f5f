// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// CMMSClient talks to the maintenance system's paginated JSON API using
// Basic auth. The API is rate limited upstream, so every call goes through
// a local limiter first; hitting the limiter blocks instead of burning a
// request that would come back 429.
type CMMSClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// NewCMMSClient builds a CMMS client. The limiter allows a sustained five
// requests per second with a burst of ten, matching the vendor's
// documented per-key limit.
func NewCMMSClient(baseURL, clientID, clientSecret string) *CMMSClient {
	return &CMMSClient{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(5), 10),
	}
}

// Task is one CMMS work order. DateCompleted is unix seconds; zero means
// the task has never been completed. Status is the CMMS numeric code and
// may be absent on older records.
type Task struct {
	ID              int    `json:"taskID"`
	Name            string `json:"name"`
	AssetID         int    `json:"assetID"`
	UserID          int    `json:"userID"`
	Status          *int   `json:"status"`
	DateCompleted   int64  `json:"dateCompleted"`
	CreatedDate     int64  `json:"createdDate"`
	Description     string `json:"description"`
	CompletionNotes string `json:"completionNotes"`
}

// Asset is one CMMS asset (a door, in this deployment).
type Asset struct {
	ID           int    `json:"assetID"`
	Name         string `json:"name"`
	Customer     string `json:"customer"`
	Location     string `json:"location"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// User is one CMMS user (a technician).
type User struct {
	ID    int    `json:"userID"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TaskQuery selects one page of tasks. AssetID zero means no server-side
// asset filter. Pages are 1-based.
type TaskQuery struct {
	Page    int
	Limit   int
	AssetID int
}

// Tasks fetches one page of work orders.
func (c *CMMSClient) Tasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.AssetID != 0 {
		params.Set("assetID", strconv.Itoa(q.AssetID))
	}

	var tasks []Task
	if err := c.get(ctx, "/tasks", params, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// AssetQuery selects assets. Customer filters server side; Query is a
// free-text name match.
type AssetQuery struct {
	Customer string
	Query    string
	Limit    int
}

// Assets fetches assets matching the query.
func (c *CMMSClient) Assets(ctx context.Context, q AssetQuery) ([]Asset, error) {
	params := url.Values{}
	if q.Customer != "" {
		params.Set("customer", q.Customer)
	}
	if q.Query != "" {
		params.Set("search", q.Query)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var assets []Asset
	if err := c.get(ctx, "/assets", params, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// Asset fetches a single asset by ID.
func (c *CMMSClient) Asset(ctx context.Context, id int) (*Asset, error) {
	var asset Asset
	if err := c.get(ctx, "/assets/"+strconv.Itoa(id), url.Values{}, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// Users fetches the technician directory.
func (c *CMMSClient) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.get(ctx, "/users", url.Values{}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *CMMSClient) get(ctx context.Context, path string, params url.Values, target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create CMMS request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("CMMS request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{Service: "CMMS", Status: resp.StatusCode}
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to parse CMMS response: %w", err)
	}
	return nil
}
