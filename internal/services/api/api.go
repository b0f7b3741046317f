// Package api exposes the query layer as a JSON HTTP API for the MCP
// server and other internal consumers
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"westminster/internal/adapters/qdrant"
	perr "westminster/internal/platform/errors"
	"westminster/internal/platform/logger"
	"westminster/internal/services/query"
)

// Options configures the mounted API
type Options struct {
	Queries        *query.Handler
	AllowedOrigins []string
	EnableMetrics  bool
}

// Mount wires all routes onto the router
func Mount(r *chi.Mux, opts Options) {
	a := &api{queries: opts.Queries, log: *logger.Named("api")}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", a.health)
	if opts.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/contributions/search", a.searchContributions)
		r.Post("/contributions/contributors", a.findContributors)
		r.Post("/contributions/recommend", a.recommend)
		r.Post("/contributions/discover", a.discover)
		r.Post("/debates/search", a.searchDebates)
		r.Post("/questions/search", a.searchQuestions)
	})
}

type api struct {
	queries *query.Handler
	log     logger.Logger
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// contributionSearchRequest mirrors query.ContributionParams plus the
// optional diversification knobs
type contributionSearchRequest struct {
	Query            string  `json:"query"`
	MemberID         *int    `json:"member_id"`
	DebateID         string  `json:"debate_id"`
	House            string  `json:"house"`
	DateFrom         string  `json:"date_from"`
	DateTo           string  `json:"date_to"`
	ExcludeMemberIDs []int   `json:"exclude_member_ids"`
	MaxResults       int     `json:"max_results"`
	MinScore         float64 `json:"min_score"`
	GroupBy          string  `json:"group_by"`
	GroupSize        int     `json:"group_size"`
}

func (a *api) searchContributions(w http.ResponseWriter, r *http.Request) {
	var req contributionSearchRequest
	if !decode(w, r, &req) {
		return
	}
	params := query.ContributionParams{
		Query:            req.Query,
		MemberID:         req.MemberID,
		DebateID:         req.DebateID,
		House:            req.House,
		DateFrom:         req.DateFrom,
		DateTo:           req.DateTo,
		ExcludeMemberIDs: req.ExcludeMemberIDs,
		MaxResults:       req.MaxResults,
		MinScore:         req.MinScore,
	}

	if req.GroupBy != "" {
		groups, err := a.queries.SearchHansardContributionsGrouped(r.Context(), params, req.GroupBy, req.GroupSize)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
		return
	}

	hits, err := a.queries.SearchHansardContributions(r.Context(), params)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (a *api) findContributors(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query            string `json:"query"`
		NumContributors  int    `json:"num_contributors"`
		NumContributions int    `json:"num_contributions"`
		DateFrom         string `json:"date_from"`
		DateTo           string `json:"date_to"`
		House            string `json:"house"`
	}
	if !decode(w, r, &req) {
		return
	}
	groups, err := a.queries.FindRelevantContributors(r.Context(), req.Query,
		req.NumContributors, req.NumContributions, req.DateFrom, req.DateTo, req.House)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contributors": groups})
}

func (a *api) recommend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PositiveIDs []string `json:"positive_ids"`
		NegativeIDs []string `json:"negative_ids"`
		MaxResults  int      `json:"max_results"`
	}
	if !decode(w, r, &req) {
		return
	}
	hits, err := a.queries.RecommendContributions(r.Context(), req.PositiveIDs, req.NegativeIDs, req.MaxResults)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (a *api) discover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetID     string `json:"target_id"`
		ContextPairs []struct {
			Positive string `json:"positive"`
			Negative string `json:"negative"`
		} `json:"context_pairs"`
		MaxResults int `json:"max_results"`
	}
	if !decode(w, r, &req) {
		return
	}
	pairs := make([]qdrant.ContextPair, len(req.ContextPairs))
	for i, p := range req.ContextPairs {
		pairs[i] = qdrant.ContextPair{Positive: p.Positive, Negative: p.Negative}
	}
	hits, err := a.queries.DiscoverContributions(r.Context(), req.TargetID, pairs, req.MaxResults)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (a *api) searchDebates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string `json:"query"`
		DateFrom   string `json:"date_from"`
		DateTo     string `json:"date_to"`
		House      string `json:"house"`
		MaxResults int    `json:"max_results"`
	}
	if !decode(w, r, &req) {
		return
	}
	debates, err := a.queries.SearchDebateTitles(r.Context(), query.DebateTitleParams{
		Query:      req.Query,
		DateFrom:   req.DateFrom,
		DateTo:     req.DateTo,
		House:      req.House,
		MaxResults: req.MaxResults,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"debates": debates})
}

func (a *api) searchQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query             string  `json:"query"`
		DateFrom          string  `json:"date_from"`
		DateTo            string  `json:"date_to"`
		Party             string  `json:"party"`
		AskingMemberID    *int    `json:"asking_member_id"`
		AnsweringBodyName string  `json:"answering_body_name"`
		MinScore          float64 `json:"min_score"`
		MaxResults        int     `json:"max_results"`
	}
	if !decode(w, r, &req) {
		return
	}
	questions, err := a.queries.SearchParliamentaryQuestions(r.Context(), query.PQParams{
		Query:             req.Query,
		DateFrom:          req.DateFrom,
		DateTo:            req.DateTo,
		Party:             req.Party,
		AskingMemberID:    req.AskingMemberID,
		AnsweringBodyName: req.AnsweringBodyName,
		MinScore:          req.MinScore,
		MaxResults:        req.MaxResults,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

// fail maps the error taxonomy to HTTP statuses
func (a *api) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch perr.CodeOf(err) {
	case perr.ErrorCodeInvalidArgument, perr.ErrorCodeValidation:
		status = http.StatusBadRequest
	case perr.ErrorCodeNotFound:
		status = http.StatusNotFound
	case perr.ErrorCodeTooManyRequests:
		status = http.StatusTooManyRequests
	case perr.ErrorCodeUnavailable, perr.ErrorCodeVectorStore:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		a.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
