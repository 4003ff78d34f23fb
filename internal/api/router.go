package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Guizzs26/single_ballot_poll_system/internal/auth"
	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
	"github.com/Guizzs26/single_ballot_poll_system/internal/pubsub"
)

// App is the HTTP face of the poll registry. Tokens, Hub and Metrics are
// optional; without Tokens every call is unauthenticated.
type App struct {
	Polls   *poll.Registry
	Tokens  *auth.Tokens
	Hub     *pubsub.Hub
	Metrics http.Handler
	Logger  *slog.Logger
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(a.authenticate)

		r.Post("/polls/{pollID}/initialize", a.InitializeHandler)
		r.Post("/polls/{pollID}/votes", a.VoteHandler)
		r.Get("/polls/{pollID}/options", a.OptionsHandler)
		r.Get("/polls/{pollID}/options/{option}/count", a.VoteCountHandler)
		r.Get("/polls/{pollID}/voters/{voter}", a.HasVotedHandler)
		r.Get("/polls/{pollID}/audit", a.AuditHandler)
	})

	if a.Hub != nil {
		r.Get("/ws/votes/{pollID}", func(w http.ResponseWriter, r *http.Request) {
			a.Hub.ServeWS(w, r, urlParam(r, "pollID"))
		})
	}
	if a.Metrics != nil {
		r.Handle("/metrics", a.Metrics)
	}

	return r
}

// authenticate verifies an optional bearer token and records its subject as
// the caller. A present but invalid token is rejected here, before any
// handler can reveal poll state.
func (a *App) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || a.Tokens == nil {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			ErrorJSON(w, http.StatusUnauthorized, "authorization header must be a bearer token")
			return
		}
		subject, err := a.Tokens.Verify(token)
		if err != nil {
			logging.Resolve(a.Logger).WarnContext(r.Context(), "bearer token rejected",
				"event", "api_token_rejected",
				"request_id", middleware.GetReqID(r.Context()),
				"error", err.Error(),
			)
			WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), subject)))
	})
}
