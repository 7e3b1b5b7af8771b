package core

// WeeklyPoint is the per-week, per-name total shown as one chart category.
type WeeklyPoint struct {
	WeekStart Date             `json:"week_start"`
	Label     string           `json:"week"`
	Totals    map[string]int64 `json:"totals"`
}

// WeeklySeries is the chart-ready view of the history log.
// Names holds every name seen in any point, in first-seen order.
type WeeklySeries struct {
	Points []WeeklyPoint `json:"points"`
	Names  []string      `json:"names"`
}

// Total returns the count for name in the point, zero when absent.
func (p WeeklyPoint) Total(name string) int64 {
	return p.Totals[name]
}

// Has reports whether name has any count in the point.
func (p WeeklyPoint) Has(name string) bool {
	_, ok := p.Totals[name]
	return ok
}

// Max returns the largest single total across all points.
func (s WeeklySeries) Max() int64 {
	var highest int64
	for _, p := range s.Points {
		for _, v := range p.Totals {
			if v > highest {
				highest = v
			}
		}
	}
	return highest
}

// Aggregate groups history by its stored week start and sums counts per
// display name. Weeks keep the order in which they first appear in records,
// so callers pass records already ordered by week start. Runs in O(len(records)).
func Aggregate(records []HistoryRecord, labeler WeekLabeler) WeeklySeries {
	if labeler == nil {
		labeler = FrenchLabeler{}
	}

	series := WeeklySeries{}
	index := make(map[string]int)
	seenName := make(map[string]struct{})

	for _, rec := range records {
		key := rec.WeekStart.Key()
		i, ok := index[key]
		if !ok {
			i = len(series.Points)
			index[key] = i
			series.Points = append(series.Points, WeeklyPoint{
				WeekStart: rec.WeekStart,
				Label:     labeler.Label(rec.WeekStart, WeekEnd(rec.WeekStart)),
				Totals:    make(map[string]int64),
			})
		}
		series.Points[i].Totals[rec.Name] += rec.Count

		if _, ok := seenName[rec.Name]; !ok {
			seenName[rec.Name] = struct{}{}
			series.Names = append(series.Names, rec.Name)
		}
	}

	return series
}
