package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
)

type InitializeRequest struct {
	Admin   string   `json:"admin"`
	Options []string `json:"options"`
}

type VoteRequest struct {
	Voter  string `json:"voter"`
	Option string `json:"option"`
}

type CountResponse struct {
	Count uint32 `json:"count"`
}

type OptionsResponse struct {
	Options []string `json:"options"`
}

type HasVotedResponse struct {
	HasVoted bool `json:"has_voted"`
}

// urlParam returns a decoded route parameter. chi matches against
// r.URL.RawPath whenever the request carries one, and then hands back the
// segment still escaped.
func urlParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func (a *App) machine(w http.ResponseWriter, r *http.Request) (*poll.Machine, bool) {
	m, err := a.Polls.Poll(urlParam(r, "pollID"))
	if err != nil {
		logging.Resolve(a.Logger).ErrorContext(r.Context(), "poll lookup failed",
			"event", "api_poll_lookup_failed",
			"error", err.Error(),
		)
		ErrorJSON(w, http.StatusBadRequest, "invalid poll id")
		return nil, false
	}
	return m, true
}

func (a *App) InitializeHandler(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorJSON(w, http.StatusBadRequest, "invalid request")
		return
	}
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	if err := m.Initialize(r.Context(), req.Admin, req.Options); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) VoteHandler(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorJSON(w, http.StatusBadRequest, "invalid request")
		return
	}
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	count, err := m.Vote(r.Context(), req.Voter, req.Option)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, CountResponse{Count: count})
}

func (a *App) VoteCountHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	count, err := m.VoteCount(r.Context(), urlParam(r, "option"))
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, CountResponse{Count: count})
}

func (a *App) OptionsHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	options, err := m.Options(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, OptionsResponse{Options: options})
}

func (a *App) HasVotedHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, HasVotedResponse{HasVoted: m.HasVoted(r.Context(), urlParam(r, "voter"))})
}

func (a *App) AuditHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := a.machine(w, r)
	if !ok {
		return
	}
	report, err := m.Audit(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, report)
}
