// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aas-portal/copilot/services/copilot/clients"
	"github.com/aas-portal/copilot/services/copilot/datatypes"
	"github.com/aas-portal/copilot/services/copilot/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "completed", statusLabel(clients.Task{DateCompleted: 1700000000}))
	assert.Equal(t, "completed", statusLabel(clients.Task{Status: intPtr(3)}))
	assert.Equal(t, "completed", statusLabel(clients.Task{Status: intPtr(4)}))
	assert.Equal(t, "open", statusLabel(clients.Task{Status: intPtr(0)}))
	assert.Equal(t, "open", statusLabel(clients.Task{Status: intPtr(1)}))
	assert.Equal(t, "open", statusLabel(clients.Task{Status: intPtr(2)}))
	// Unknown code and absent code both count as open.
	assert.Equal(t, "open", statusLabel(clients.Task{Status: intPtr(9)}))
	assert.Equal(t, "open", statusLabel(clients.Task{}))
	// A completion date wins over an open status code.
	assert.Equal(t, "completed", statusLabel(clients.Task{Status: intPtr(1), DateCompleted: 1700000000}))
}

func TestDateWindow(t *testing.T) {
	loc := operatingZone()
	// Wednesday, mid-afternoon.
	now := time.Date(2026, 8, 26, 15, 0, 0, 0, loc)

	start, end, ok := dateWindow("today", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, loc).Unix(), start)
	assert.Equal(t, time.Date(2026, 8, 27, 0, 0, 0, 0, loc).Unix(), end)

	start, end, ok = dateWindow("yesterday", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, loc).Unix(), start)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, loc).Unix(), end)

	start, end, ok = dateWindow("this_week", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, loc).Unix(), start, "weeks start Monday")
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, loc).Unix(), end)

	start, end, ok = dateWindow("this_month", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, loc).Unix(), start)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, loc).Unix(), end)

	start, end, ok = dateWindow("2026-07-04", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 7, 4, 0, 0, 0, 0, loc).Unix(), start)
	assert.Equal(t, time.Date(2026, 7, 5, 0, 0, 0, 0, loc).Unix(), end)

	_, _, ok = dateWindow("", now)
	assert.False(t, ok)
	_, _, ok = dateWindow("fortnight", now)
	assert.False(t, ok)
}

// fakeCMMS serves a canned task list with real pagination semantics and
// records every request it sees.
type fakeCMMS struct {
	mu       sync.Mutex
	tasks    []clients.Task
	assets   map[int]clients.Asset
	users    []clients.User
	requests []string
}

func (f *fakeCMMS) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		assetID, _ := strconv.Atoi(r.URL.Query().Get("assetID"))

		matching := f.tasks
		if assetID != 0 {
			matching = nil
			for _, task := range f.tasks {
				if task.AssetID == assetID {
					matching = append(matching, task)
				}
			}
		}

		lo := (page - 1) * limit
		hi := lo + limit
		if lo > len(matching) {
			lo = len(matching)
		}
		if hi > len(matching) {
			hi = len(matching)
		}
		out := matching[lo:hi]
		if out == nil {
			out = []clients.Task{}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/assets/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/assets/"))
		asset, ok := f.assets[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(asset)
	})
	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		out := make([]clients.Asset, 0, len(f.assets))
		for _, a := range f.assets {
			out = append(out, a)
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		_ = json.NewEncoder(w).Encode(f.users)
	})
	return mux
}

func (f *fakeCMMS) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.URL.RequestURI())
}

func (f *fakeCMMS) taskRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, req := range f.requests {
		if strings.HasPrefix(req, "/tasks") {
			out = append(out, req)
		}
	}
	return out
}

func newWorkOrderExecutor(t *testing.T, fake *fakeCMMS) (*Executor, func()) {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	catalog, err := NewCatalog()
	require.NoError(t, err)
	exec := NewExecutor(catalog, clients.NewCMMSClient(srv.URL, "id", "secret"), nil, nil, nil, nil)
	return exec, srv.Close
}

func decodePayload(t *testing.T, payload string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &out))
	return out
}

func TestWorkOrdersFastPathUsesAssetFilter(t *testing.T) {
	now := time.Now().Unix()
	fake := &fakeCMMS{tasks: []clients.Task{
		{ID: 1, AssetID: 7, DateCompleted: now - 300, Status: intPtr(3), Name: "Adjust closer"},
		{ID: 2, AssetID: 7, DateCompleted: now - 100, Status: intPtr(3), Name: "Replace belt"},
		{ID: 3, AssetID: 9, DateCompleted: now - 50, Status: intPtr(3), Name: "Other door"},
	}}
	exec, done := newWorkOrderExecutor(t, fake)
	defer done()

	payload := exec.Execute(context.Background(), datatypes.ToolInvocation{
		Name:  ToolGetWorkOrders,
		Input: map[string]any{"asset_id": 7},
	}, Options{})

	out := decodePayload(t, payload)
	assert.EqualValues(t, 2, out["count"])

	results := out["results"].([]any)
	first := results[0].(map[string]any)
	assert.EqualValues(t, 2, first["work_order_id"], "most recent completion first")

	reqs := fake.taskRequests()
	require.NotEmpty(t, reqs)
	assert.LessOrEqual(t, len(reqs), fastScanMaxPages)
	for _, r := range reqs {
		assert.Contains(t, r, "assetID=7")
	}
}

func TestWorkOrdersFullScanFindsRecentWork(t *testing.T) {
	// 730 tasks spread over 8 pages; the target user's work sits at the
	// tail, where the most recent records live.
	now := time.Now().Unix()
	var tasks []clients.Task
	for i := 0; i < 730; i++ {
		task := clients.Task{
			ID:            i + 1,
			AssetID:       100 + i%10,
			UserID:        50,
			DateCompleted: now - int64(730-i)*60,
			Status:        intPtr(3),
		}
		if i == 729 {
			task.UserID = 42
			task.Name = "Latest job"
		}
		tasks = append(tasks, task)
	}
	fake := &fakeCMMS{tasks: tasks}
	exec, done := newWorkOrderExecutor(t, fake)
	defer done()

	payload := exec.Execute(context.Background(), datatypes.ToolInvocation{
		Name:  ToolGetWorkOrders,
		Input: map[string]any{"user_id": 42},
	}, Options{})

	out := decodePayload(t, payload)
	assert.EqualValues(t, 1, out["count"])
	first := out["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "Latest job", first["name"])

	// The scan must not have read every page sequentially.
	assert.Less(t, len(fake.taskRequests()), 16)
}

func TestWorkOrdersStatusFilter(t *testing.T) {
	now := time.Now().Unix()
	fake := &fakeCMMS{tasks: []clients.Task{
		{ID: 1, AssetID: 7, Status: intPtr(1), CreatedDate: now - 100, Name: "Open job"},
		{ID: 2, AssetID: 7, Status: intPtr(3), DateCompleted: now - 50, Name: "Done job"},
	}}
	exec, done := newWorkOrderExecutor(t, fake)
	defer done()

	payload := exec.Execute(context.Background(), datatypes.ToolInvocation{
		Name:  ToolGetWorkOrders,
		Input: map[string]any{"asset_id": 7, "status": "open"},
	}, Options{})
	out := decodePayload(t, payload)
	assert.EqualValues(t, 1, out["count"])
	assert.Equal(t, "Open job", out["results"].([]any)[0].(map[string]any)["name"])

	payload = exec.Execute(context.Background(), datatypes.ToolInvocation{
		Name:  ToolGetWorkOrders,
		Input: map[string]any{"asset_id": 7, "status": "completed"},
	}, Options{})
	out = decodePayload(t, payload)
	assert.EqualValues(t, 1, out["count"])
	assert.Equal(t, "Done job", out["results"].([]any)[0].(map[string]any)["name"])
}

func TestDoorHistoryRejectsWrongCustomer(t *testing.T) {
	fake := &fakeCMMS{
		assets: map[int]clients.Asset{
			5: {ID: 5, Name: "Main entrance", Customer: "acme hospital"},
		},
	}
	exec, done := newWorkOrderExecutor(t, fake)
	defer done()

	payload := exec.Execute(context.Background(), datatypes.ToolInvocation{
		Name:  ToolGetDoorHistory,
		Input: map[string]any{"door_id": 5, "customer": "other corp"},
	}, Options{})

	out := decodePayload(t, payload)
	assert.Equal(t, "Door not found for customer", out["error"])
}

func TestDoorHistoryAcceptsAliasedAccount(t *testing.T) {
	now := time.Now().Unix()
	fake := &fakeCMMS{
		assets: map[int]clients.Asset{
			5: {ID: 5, Name: "East wing entrance", Customer: "Acme Hospital East"},
		},
		tasks: []clients.Task{
			{ID: 1, AssetID: 5, Status: intPtr(3), DateCompleted: now - 200, CompletionNotes: "Adjusted closer"},
		},
	}
	exec, done := newWorkOrderExecutor(t, fake)
	defer done()
	exec.SetTenantAuthorizer(tenancy.NewGuard(map[string][]string{
		"acme hospital": {"acme hospital east"},
	}))

	// The door is filed under one of the tenant's CMMS aliases; the
	// stamped canonical tenant id must still match it.
	payload := exec.Execute(context.Background(), datatypes.ToolInvocation{
		Name:  ToolGetDoorHistory,
		Input: map[string]any{"door_id": 5, "customer": "acme hospital"},
	}, Options{})

	out := decodePayload(t, payload)
	require.NotContains(t, out, "error")
	assert.EqualValues(t, 1, out["count"])
}

func TestDoorHistoryReturnsCompletedWork(t *testing.T) {
	now := time.Now().Unix()
	fake := &fakeCMMS{
		assets: map[int]clients.Asset{
			5: {ID: 5, Name: "Main entrance", Customer: "Acme Hospital", Manufacturer: "horton"},
		},
		tasks: []clients.Task{
			{ID: 1, AssetID: 5, Status: intPtr(3), DateCompleted: now - 200, CompletionNotes: "Replaced belt"},
			{ID: 2, AssetID: 5, Status: intPtr(1), CreatedDate: now - 100}, // open, excluded
			{ID: 3, AssetID: 5, Status: intPtr(3), DateCompleted: now - 50},
		},
	}
	exec, done := newWorkOrderExecutor(t, fake)
	defer done()

	// Case-insensitive customer match passes.
	payload := exec.Execute(context.Background(), datatypes.ToolInvocation{
		Name:  ToolGetDoorHistory,
		Input: map[string]any{"door_id": 5, "customer": "acme hospital"},
	}, Options{})

	out := decodePayload(t, payload)
	assert.EqualValues(t, 2, out["count"])
	assert.Equal(t, "Main entrance", out["door_name"])
	results := out["results"].([]any)
	assert.EqualValues(t, 3, results[0].(map[string]any)["work_order_id"], "most recent first")
	assert.Equal(t, "Replaced belt", results[1].(map[string]any)["completion_notes"])
}

func TestListTechnicians(t *testing.T) {
	fake := &fakeCMMS{users: []clients.User{
		{ID: 42, Name: "Dana Ruiz", Email: "dana@example.com", Role: "tech"},
	}}
	exec, done := newWorkOrderExecutor(t, fake)
	defer done()

	payload := exec.Execute(context.Background(), datatypes.ToolInvocation{
		Name:  ToolListTechnicians,
		Input: map[string]any{},
	}, Options{})

	out := decodePayload(t, payload)
	assert.EqualValues(t, 1, out["count"])
	first := out["results"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 42, first["user_id"])
	assert.Equal(t, "Dana Ruiz", first["name"])
}
