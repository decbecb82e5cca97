// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"net/http"

	"github.com/gorilla/mux"

	"tempora.dev/tempora/arcade/rankings"
	"tempora.dev/tempora/arcade/rulesets"
)

// pathSort resolves the optional {sort} route variable, defaulting to
// the performance ranking.
func pathSort(r *http.Request) rankings.Sort {
	if name, ok := mux.Vars(r)["sort"]; ok && name != "" {
		return rankings.Sort(name)
	}
	return rankings.SortPerformance
}

func (server *Server) userRankings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	ruleset, err := rulesets.Parse(pathVar(r, "ruleset"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	page, err := server.services.Rankings.Users(ctx, ruleset, pathSort(r),
		r.URL.Query().Get("country"), queryInt(r, "page", 1))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, page)
}

func (server *Server) countryRankings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	ruleset, err := rulesets.Parse(pathVar(r, "ruleset"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	entries, err := server.services.Rankings.Countries(ctx, ruleset, pathSort(r), queryInt(r, "page", 1))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{"ranking": nonNil(entries)})
}

func (server *Server) teamRankings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	ruleset, err := rulesets.Parse(pathVar(r, "ruleset"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	entries, err := server.services.Rankings.Teams(ctx, ruleset, pathSort(r), queryInt(r, "page", 1))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{"ranking": nonNil(entries)})
}
