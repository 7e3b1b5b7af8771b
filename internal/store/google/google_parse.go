package google

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"compteur/internal/core"
)

func counterRow(c core.Counter) []any {
	return []any{c.ID, c.Name, c.Count, formatTime(c.CreatedAt), formatTime(c.UpdatedAt)}
}

func historyRow(h core.HistoryRecord) []any {
	return []any{h.ID, h.CounterID, h.Name, h.Count, h.WeekStart.String(), formatTime(h.CreatedAt)}
}

// parseCounters converts the counters tab body (header excluded) into counters,
// skipping cleared rows and rows without a usable name.
func parseCounters(values [][]interface{}) []core.Counter {
	var out []core.Counter
	for _, raw := range values {
		row := toStrings(raw)
		id := safeGet(row, 0)
		name := safeGet(row, 1)
		if id == "" || name == "" {
			continue
		}
		count, err := strconv.ParseInt(safeGet(row, 2), 10, 64)
		if err != nil || count < 0 {
			count = 0
		}
		out = append(out, core.Counter{
			ID:        id,
			Name:      name,
			Count:     count,
			CreatedAt: parseTime(safeGet(row, 3)),
			UpdatedAt: parseTime(safeGet(row, 4)),
		})
	}
	return out
}

// parseHistory converts the history tab body into records ordered by week start.
// Rows with an unreadable week start are dropped.
func parseHistory(values [][]interface{}) []core.HistoryRecord {
	var out []core.HistoryRecord
	for _, raw := range values {
		row := toStrings(raw)
		name := safeGet(row, 2)
		if name == "" {
			continue
		}
		week, err := core.ParseDate(safeGet(row, 4))
		if err != nil {
			continue
		}
		count, err := strconv.ParseInt(safeGet(row, 3), 10, 64)
		if err != nil || count <= 0 {
			count = 1
		}
		out = append(out, core.HistoryRecord{
			ID:        safeGet(row, 0),
			CounterID: safeGet(row, 1),
			Name:      name,
			Count:     count,
			WeekStart: week,
			CreatedAt: parseTime(safeGet(row, 5)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WeekStart.Key() < out[j].WeekStart.Key()
	})
	return out
}

// rowOf returns the 1-based row index of id in a single-column read starting at A1.
func rowOf(values [][]interface{}, id string) int {
	for i, raw := range values {
		if len(raw) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(raw[0])) == id {
			return i + 1
		}
	}
	return -1
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
