// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aas-portal/copilot/services/copilot/clients"
	"golang.org/x/sync/errgroup"
)

// CMMS pagination bounds. The API pages newest-first is NOT guaranteed,
// so recent work lives on the highest pages; the full scan locates the
// last page and reads backwards from there.
const (
	cmmsPageSize     = 100
	fastScanMaxPages = 3
	fullScanTailPage = 5
)

// CMMS numeric status codes.
var (
	openStatusCodes      = map[int]bool{0: true, 1: true, 2: true}
	completedStatusCodes = map[int]bool{3: true, 4: true}
)

// statusLabel maps a task to "open" or "completed". A recorded
// completion date wins over the status code; unknown or absent codes
// count as open.
func statusLabel(t clients.Task) string {
	if t.DateCompleted > 0 {
		return "completed"
	}
	if t.Status != nil {
		if completedStatusCodes[*t.Status] {
			return "completed"
		}
		if openStatusCodes[*t.Status] {
			return "open"
		}
	}
	return "open"
}

// =============================================================================
// Date windows
// =============================================================================

var (
	chicagoOnce sync.Once
	chicagoLoc  *time.Location
)

// operatingZone returns the company's civil timezone. "Today" for a
// dispatcher in the Midwest is a Chicago day regardless of where the
// service runs.
func operatingZone() *time.Location {
	chicagoOnce.Do(func() {
		loc, err := time.LoadLocation("America/Chicago")
		if err != nil {
			slog.Warn("Timezone database missing America/Chicago, using fixed CST offset", "error", err)
			loc = time.FixedZone("CST", -6*60*60)
		}
		chicagoLoc = loc
	})
	return chicagoLoc
}

// dateWindow resolves a date_filter value to a [start, end) unix-seconds
// window in the operating timezone. Returns ok=false for an empty or
// unrecognized filter, which means no date filtering.
func dateWindow(filter string, now time.Time) (start, end int64, ok bool) {
	loc := operatingZone()
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch filter {
	case "today":
		return midnight.Unix(), midnight.AddDate(0, 0, 1).Unix(), true
	case "yesterday":
		return midnight.AddDate(0, 0, -1).Unix(), midnight.Unix(), true
	case "this_week":
		// Weeks start Monday.
		offset := (int(local.Weekday()) + 6) % 7
		weekStart := midnight.AddDate(0, 0, -offset)
		return weekStart.Unix(), weekStart.AddDate(0, 0, 7).Unix(), true
	case "this_month":
		monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return monthStart.Unix(), monthStart.AddDate(0, 1, 0).Unix(), true
	case "":
		return 0, 0, false
	}

	if day, err := time.ParseInLocation("2006-01-02", filter, loc); err == nil {
		return day.Unix(), day.AddDate(0, 0, 1).Unix(), true
	}
	return 0, 0, false
}

// taskTimestamp is the instant a task is filed and sorted under:
// completion time when it has one, creation time otherwise.
func taskTimestamp(t clients.Task) int64 {
	if t.DateCompleted > 0 {
		return t.DateCompleted
	}
	return t.CreatedDate
}

// =============================================================================
// get_work_orders
// =============================================================================

func (e *Executor) executeWorkOrders(ctx context.Context, input map[string]any) string {
	if e.cmms == nil {
		return errorPayload("CMMS unavailable", nil)
	}

	assetID := intArg(input, "asset_id", 0)
	userID := intArg(input, "user_id", 0)
	status := strArg(input, "status")
	dateFilter := strArg(input, "date_filter")
	limit := limitArg(input)

	var tasks []clients.Task
	var err error
	if assetID != 0 && userID == 0 {
		// Server-side asset filter keeps the result set small enough
		// for a bounded forward scan.
		tasks, err = e.scanAssetTasks(ctx, assetID)
	} else {
		tasks, err = e.scanRecentTasks(ctx)
	}
	if err != nil {
		return upstreamErrorPayload("CMMS", err)
	}

	windowStart, windowEnd, hasWindow := dateWindow(dateFilter, time.Now())

	filtered := make([]clients.Task, 0, len(tasks))
	for _, t := range tasks {
		if assetID != 0 && t.AssetID != assetID {
			continue
		}
		if userID != 0 && t.UserID != userID {
			continue
		}
		label := statusLabel(t)
		if status == "open" && label != "open" {
			continue
		}
		if status == "completed" && label != "completed" {
			continue
		}
		if hasWindow {
			ts := taskTimestamp(t)
			if ts < windowStart || ts >= windowEnd {
				continue
			}
		}
		filtered = append(filtered, t)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return taskTimestamp(filtered[i]) > taskTimestamp(filtered[j])
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	results := make([]map[string]any, 0, len(filtered))
	for _, t := range filtered {
		results = append(results, taskFields(t))
	}
	return marshalPayload(map[string]any{
		"count":   len(results),
		"results": results,
	})
}

func taskFields(t clients.Task) map[string]any {
	fields := map[string]any{
		"work_order_id": t.ID,
		"name":          t.Name,
		"asset_id":      t.AssetID,
		"user_id":       t.UserID,
		"status":        statusLabel(t),
		"description":   truncate(t.Description, maxNotesLen),
	}
	if t.DateCompleted > 0 {
		fields["completed_at"] = time.Unix(t.DateCompleted, 0).In(operatingZone()).Format("2006-01-02")
	}
	if t.CreatedDate > 0 {
		fields["created_at"] = time.Unix(t.CreatedDate, 0).In(operatingZone()).Format("2006-01-02")
	}
	if t.CompletionNotes != "" {
		fields["completion_notes"] = truncate(t.CompletionNotes, maxNotesLen)
	}
	return fields
}

// scanAssetTasks reads up to fastScanMaxPages pages with the server-side
// asset filter. One asset rarely has more work orders than that.
func (e *Executor) scanAssetTasks(ctx context.Context, assetID int) ([]clients.Task, error) {
	var all []clients.Task
	for page := 1; page <= fastScanMaxPages; page++ {
		tasks, err := e.cmms.Tasks(ctx, clients.TaskQuery{Page: page, Limit: cmmsPageSize, AssetID: assetID})
		if err != nil {
			return nil, err
		}
		all = append(all, tasks...)
		if len(tasks) < cmmsPageSize {
			break
		}
	}
	return all, nil
}

// scanRecentTasks locates the last page of the unfiltered task list and
// fetches the final stretch in parallel. The CMMS API reports no total
// count, so the last page is found by doubling past the end and then
// binary searching for the boundary.
func (e *Executor) scanRecentTasks(ctx context.Context) ([]clients.Task, error) {
	pageLen := func(page int) (int, error) {
		tasks, err := e.cmms.Tasks(ctx, clients.TaskQuery{Page: page, Limit: cmmsPageSize})
		if err != nil {
			return 0, err
		}
		return len(tasks), nil
	}

	// Double until we fall off the end.
	lastFull := 0
	probe := 1
	for {
		n, err := pageLen(probe)
		if err != nil {
			return nil, err
		}
		if n == cmmsPageSize {
			lastFull = probe
			probe *= 2
			continue
		}
		if n > 0 {
			// Short page is the last page.
			lastFull = probe
		}
		break
	}
	if lastFull == 0 {
		return nil, nil
	}

	// Binary search between the last full page and the empty probe for
	// the true final page.
	lo, hi := lastFull, probe
	for lo+1 < hi {
		mid := (lo + hi) / 2
		n, err := pageLen(mid)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	lastPage := lo

	firstPage := lastPage - fullScanTailPage + 1
	if firstPage < 1 {
		firstPage = 1
	}

	pages := make([][]clients.Task, lastPage-firstPage+1)
	g, gctx := errgroup.WithContext(ctx)
	for i := range pages {
		page := firstPage + i
		g.Go(func() error {
			tasks, err := e.cmms.Tasks(gctx, clients.TaskQuery{Page: page, Limit: cmmsPageSize})
			if err != nil {
				return err
			}
			pages[page-firstPage] = tasks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []clients.Task
	for _, p := range pages {
		all = append(all, p...)
	}
	return all, nil
}

// =============================================================================
// search_doors
// =============================================================================

func (e *Executor) executeDoorSearch(ctx context.Context, input map[string]any) string {
	if e.cmms == nil {
		return errorPayload("CMMS unavailable", nil)
	}

	limit := limitArg(input)
	assets, err := e.cmms.Assets(ctx, clients.AssetQuery{
		Customer: strArg(input, "customer"),
		Query:    strArg(input, "query"),
		Limit:    limit,
	})
	if err != nil {
		return upstreamErrorPayload("CMMS", err)
	}

	if len(assets) > limit {
		assets = assets[:limit]
	}
	results := make([]map[string]any, 0, len(assets))
	for _, a := range assets {
		results = append(results, map[string]any{
			"asset_id":     a.ID,
			"name":         a.Name,
			"customer":     a.Customer,
			"location":     a.Location,
			"manufacturer": a.Manufacturer,
			"model":        a.Model,
		})
	}
	return marshalPayload(map[string]any{
		"count":   len(results),
		"results": results,
	})
}

// =============================================================================
// get_door_history
// =============================================================================

func (e *Executor) executeDoorHistory(ctx context.Context, input map[string]any) string {
	if e.cmms == nil {
		return errorPayload("CMMS unavailable", nil)
	}

	doorID := intArg(input, "door_id", 0)
	days := intArg(input, "days", defaultHistoryDays)
	if days < 1 {
		days = defaultHistoryDays
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	customer := strArg(input, "customer")

	asset, err := e.cmms.Asset(ctx, doorID)
	if err != nil {
		return upstreamErrorPayload("CMMS", err)
	}

	// A scoped caller only sees doors belonging to their own accounts.
	// The CMMS may file the door under one of the tenant's aliases.
	if customer != "" && !e.ownsAccount(customer, asset.Customer) {
		return errorPayload("Door not found for customer", nil)
	}

	tasks, err := e.scanAssetTasks(ctx, doorID)
	if err != nil {
		return upstreamErrorPayload("CMMS", err)
	}

	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	history := make([]clients.Task, 0, len(tasks))
	for _, t := range tasks {
		if statusLabel(t) != "completed" {
			continue
		}
		if taskTimestamp(t) < cutoff {
			continue
		}
		history = append(history, t)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return taskTimestamp(history[i]) > taskTimestamp(history[j])
	})

	results := make([]map[string]any, 0, len(history))
	for _, t := range history {
		results = append(results, taskFields(t))
	}
	return marshalPayload(map[string]any{
		"door_id":      asset.ID,
		"door_name":    asset.Name,
		"customer":     asset.Customer,
		"manufacturer": asset.Manufacturer,
		"model":        asset.Model,
		"days":         days,
		"count":        len(results),
		"results":      results,
	})
}

func (e *Executor) ownsAccount(callerTenant, account string) bool {
	if strings.EqualFold(callerTenant, account) {
		return true
	}
	return e.tenants != nil && e.tenants.Allowed(callerTenant, account)
}

// =============================================================================
// list_technicians
// =============================================================================

func (e *Executor) executeListTechnicians(ctx context.Context) string {
	if e.cmms == nil {
		return errorPayload("CMMS unavailable", nil)
	}

	users, err := e.cmms.Users(ctx)
	if err != nil {
		return upstreamErrorPayload("CMMS", err)
	}

	results := make([]map[string]any, 0, len(users))
	for _, u := range users {
		results = append(results, map[string]any{
			"user_id": u.ID,
			"name":    u.Name,
			"email":   u.Email,
			"role":    u.Role,
		})
	}
	return marshalPayload(map[string]any{
		"count":   len(results),
		"results": results,
	})
}
