package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"compteur/internal/core"
	"compteur/internal/log"
)

const readyTimeout = 5 * time.Second

type indexView struct {
	Lang     string
	Counters countersView
	Weekly   weeklyView
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and pings the backing store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.counters.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["store"] = "failed: " + err.Error()
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	board := s.counters.Board()
	checks["board"] = map[string]any{
		"loaded":   board.Loaded,
		"counters": len(board.Counters),
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleIndex renders the full page from one snapshot. A failing store
// yields an empty list and an empty chart.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.counters.Snapshot(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load page data", log.FieldError, err)
		snap = core.Snapshot{}
	}
	data := indexView{
		Lang:     s.locale,
		Counters: newCountersView(snap.Counters),
		Weekly:   newWeeklyView(snap.Weekly, s.refreshInterval),
	}

	body, ok := s.render(ctx, "index.html", data)
	if !ok {
		InternalServerError("Page indisponible").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(body).Write(w)
}

// handleCountersPartial re-reads the store and renders the list.
func (s *Server) handleCountersPartial(w http.ResponseWriter, r *http.Request) {
	s.writeCounters(w, r, newCountersView(s.loadCounters(r.Context())), nil)
}

// handleWeeklyPartial renders the chart; the page polls it.
func (s *Server) handleWeeklyPartial(w http.ResponseWriter, r *http.Request) {
	body, ok := s.render(r.Context(), "weekly.html", s.loadWeekly(r.Context()))
	if !ok {
		InternalServerError("Graphique indisponible").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(body).Write(w)
}

func (s *Server) handleCreateCounter(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.logger.WarnContext(r.Context(), "Parse form error", log.FieldError, err)
		BadRequestError("Formulaire invalide").Write(w)
		return
	}

	c, err := s.counters.Add(r.Context(), sanitizeInput(r.Form.Get("name")))
	s.afterMutation(w, r, c.ID, err)
}

func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := s.withLoadedBoard(r.Context(), func() (core.Counter, error) {
		return s.counters.Increment(r.Context(), id)
	})
	s.afterMutation(w, r, id, err)
}

func (s *Server) handleDecrement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := s.withLoadedBoard(r.Context(), func() (core.Counter, error) {
		return s.counters.Decrement(r.Context(), id)
	})
	s.afterMutation(w, r, id, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.counters.Delete(r.Context(), id)
	s.afterMutation(w, r, id, err)
}

// withLoadedBoard retries op once after a reload when the counter is not
// on the board yet, e.g. right after a restart or when another instance
// created it.
func (s *Server) withLoadedBoard(ctx context.Context, op func() (core.Counter, error)) (core.Counter, error) {
	c, err := op()
	if !errors.Is(err, core.ErrCounterNotLoaded) {
		return c, err
	}
	if _, loadErr := s.counters.Load(ctx); loadErr != nil {
		return c, loadErr
	}
	return op()
}

// afterMutation re-renders the list from the board. Store failures and
// skipped operations were already logged by the service; the page simply
// shows the unchanged list.
func (s *Server) afterMutation(w http.ResponseWriter, r *http.Request, id string, err error) {
	ctx := r.Context()
	switch {
	case err == nil:
	case core.IsValidationSkip(err):
		// logged by the service
	case errors.Is(err, core.ErrCounterNotLoaded):
		s.logger.WarnContext(ctx, "Unknown counter", log.FieldCounterID, id)
	default:
		s.logger.ErrorContext(ctx, "Mutation failed", log.FieldCounterID, id, log.FieldError, err)
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	b := NewHTMXResponse()
	if err == nil {
		b.TriggerCountersChanged(id)
		if r.Method == http.MethodPost && r.URL.Path == "/counters" {
			b.TriggerFormReset()
		}
	}
	s.writeCounters(w, r, newCountersView(s.counters.Counters()), b)
}

func (s *Server) writeCounters(w http.ResponseWriter, r *http.Request, view countersView, b *HTMXResponseBuilder) {
	body, ok := s.render(r.Context(), "counters.html", view)
	if !ok {
		InternalServerError("Liste indisponible").Write(w)
		return
	}
	if b == nil {
		b = NewHTMXResponse()
	}
	b.BodyHTML(body).Write(w)
}

// loadCounters swallows store errors into an empty list.
func (s *Server) loadCounters(ctx context.Context) []core.Counter {
	counters, err := s.counters.Load(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load counters", log.FieldError, err)
		return nil
	}
	return counters
}

func (s *Server) loadWeekly(ctx context.Context) weeklyView {
	series, err := s.counters.Weekly(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load weekly history", log.FieldError, err)
	}
	return newWeeklyView(series, s.refreshInterval)
}

// handleAPICounters lists counters as JSON. Unlike the UI, store failures
// are reported as 503.
func (s *Server) handleAPICounters(w http.ResponseWriter, r *http.Request) {
	counters, err := s.counters.Load(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if counters == nil {
		counters = []core.Counter{}
	}
	writeJSON(w, http.StatusOK, counters)
}

func (s *Server) handleAPIWeekly(w http.ResponseWriter, r *http.Request) {
	series, err := s.counters.Weekly(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if series.Points == nil {
		series.Points = []core.WeeklyPoint{}
	}
	if series.Names == nil {
		series.Names = []string{}
	}
	writeJSON(w, http.StatusOK, series)
}
