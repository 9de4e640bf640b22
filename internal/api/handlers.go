package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

type submitRequest struct {
	Sites []model.Site `json:"sites"`
	// Wait runs the batch inside the request and returns the attempts.
	Wait        bool `json:"wait"`
	Concurrency int  `json:"concurrency"`
}

type submitResponse struct {
	Status   string                    `json:"status"`
	Sites    int                       `json:"sites"`
	Attempts []model.SubmissionAttempt `json:"attempts,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Sites) == 0 {
		s.respondWithError(w, http.StatusBadRequest, "sites cannot be empty")
		return
	}
	if len(req.Sites) > s.maxSites {
		s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("at most %d sites per request", s.maxSites))
		return
	}
	for i, site := range req.Sites {
		if msg := validateSite(site); msg != "" {
			s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("site %d: %s", i, msg))
			return
		}
	}

	if req.Wait {
		var attempts []model.SubmissionAttempt
		if len(req.Sites) == 1 {
			attempts = []model.SubmissionAttempt{s.eng.DiscoverAndSubmit(r.Context(), req.Sites[0])}
		} else {
			attempts = s.eng.SubmitBatch(r.Context(), req.Sites, req.Concurrency)
		}
		s.respondWithJSON(w, http.StatusOK, submitResponse{Status: "done", Sites: len(req.Sites), Attempts: attempts})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		attempts := s.eng.SubmitBatch(s.ctx, req.Sites, req.Concurrency)
		succeeded := 0
		for _, a := range attempts {
			if a.Succeeded() {
				succeeded++
			}
		}
		zap.L().Info("api: background batch complete",
			zap.Int("sites", len(attempts)),
			zap.Int("succeeded", succeeded),
		)
	}()

	s.respondWithJSON(w, http.StatusAccepted, submitResponse{Status: "accepted", Sites: len(req.Sites)})
}

func validateSite(site model.Site) string {
	entry := site.EntryURL()
	if entry == "" {
		return "url is required"
	}
	u, err := url.ParseRequestURI(entry)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "invalid url " + entry
	}
	if strings.TrimSpace(site.Message) == "" {
		return "message is required"
	}
	return ""
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	attempts, err := s.store.ListAttempts(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list attempts failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not list attempts")
		return
	}
	if attempts == nil {
		attempts = []model.SubmissionAttempt{}
	}
	s.respondWithJSON(w, http.StatusOK, attempts)
}

func parseFilter(q url.Values) (store.AttemptFilter, error) {
	f := store.AttemptFilter{
		Outcome: model.Outcome(q.Get("outcome")),
		Reason:  model.FailureReason(q.Get("reason")),
		SiteURL: q.Get("site"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, eris.New("since must be RFC 3339")
		}
		f.Since = t
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, eris.Errorf("%s must be a non-negative integer", p.name)
		}
		*p.dst = n
	}
	return f, nil
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.store.GetAttempt(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.respondWithError(w, http.StatusNotFound, "attempt not found")
	case err != nil:
		zap.L().Error("api: get attempt failed", zap.String("id", id), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not retrieve attempt")
	default:
		s.respondWithJSON(w, http.StatusOK, a)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := s.lookback
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondWithError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	snap, err := s.stats.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("api: collect stats failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not collect stats")
		return
	}
	s.respondWithJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "store": "healthy"}
	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		zap.L().Error("api: health check failed for store", zap.Error(err))
		status["status"] = "degraded"
		status["store"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	if s.breakers != nil {
		for name, st := range s.breakers.States() {
			status["breaker:"+name] = st.String()
		}
	}
	s.respondWithJSON(w, code, status)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("api: encode response failed", zap.Error(err))
	}
}
