package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"
	"unicode"

	"compteur/internal/core"
)

// seriesColors is cycled by series position; the legend and the bars agree
// because both index by the name's position in WeeklySeries.Names.
var seriesColors = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2",
	"#59a14f", "#edc948", "#b07aa1", "#ff9da7",
}

var templateFuncs = template.FuncMap{
	"seconds": func(d time.Duration) int { return int(d / time.Second) },
}

type countersView struct {
	Counters []core.Counter
	Total    int64
}

func newCountersView(counters []core.Counter) countersView {
	v := countersView{Counters: counters}
	for _, c := range counters {
		v.Total += c.Count
	}
	return v
}

type legendEntry struct {
	Name  string
	Color string
}

type bar struct {
	Name    string
	Count   int64
	Width   int
	Color   string
	Missing bool
}

type weekRow struct {
	Label string
	Total int64
	Bars  []bar
}

type weeklyView struct {
	Legend  []legendEntry
	Weeks   []weekRow
	Refresh time.Duration
}

// newWeeklyView lays the series out as horizontal bars scaled to the
// largest single total. Every week lists every name so bars line up.
func newWeeklyView(series core.WeeklySeries, refresh time.Duration) weeklyView {
	v := weeklyView{Refresh: refresh}
	max := series.Max()

	for i, name := range series.Names {
		v.Legend = append(v.Legend, legendEntry{Name: name, Color: colorAt(i)})
	}
	for _, p := range series.Points {
		row := weekRow{Label: p.Label}
		for i, name := range series.Names {
			count := p.Total(name)
			row.Total += count
			row.Bars = append(row.Bars, bar{
				Name:    name,
				Count:   count,
				Width:   barWidth(count, max),
				Color:   colorAt(i),
				Missing: !p.Has(name),
			})
		}
		v.Weeks = append(v.Weeks, row)
	}
	return v
}

func colorAt(i int) string {
	return seriesColors[i%len(seriesColors)]
}

// barWidth returns a rounded percentage of max, at least 2 for any
// non-zero value so small counts stay visible.
func barWidth(count, max int64) int {
	if max <= 0 || count <= 0 {
		return 0
	}
	width := int((count*100 + max/2) / max)
	if width < 2 {
		width = 2
	}
	if width > 100 {
		width = 100
	}
	return width
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
