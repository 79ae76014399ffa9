package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"ascend-interview-agent/internal/app"
	"ascend-interview-agent/internal/events"
	"ascend-interview-agent/internal/observability/metrics"
	"ascend-interview-agent/internal/service/security"
	"ascend-interview-agent/internal/service/session"
	"ascend-interview-agent/internal/service/speech"
)

// Session is the controller surface the control API drives.
type Session interface {
	Phase() session.Phase
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Submit(ctx context.Context) error
	EditTranscript(ctx context.Context, text string) error
	SetRecording(ctx context.Context, on bool) error
	HandleInput(ctx context.Context, ev security.InputEvent) (security.Verdict, error)
	Retry(ctx context.Context) error
}

// EventSource streams session events to subscribers.
type EventSource interface {
	Subscribe(fn events.Subscriber) func()
}

type transcriptRequest struct {
	Text string `json:"text"`
}

type recordingRequest struct {
	On bool `json:"on"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const requestTimeout = 10 * time.Second

// NewRouter constructs the control API router for the agent.
func NewRouter(application *app.Application, s Session, src EventSource) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": application.Uptime().Round(time.Second).String(),
		})
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		p := s.Phase()
		status := http.StatusOK
		if !p.InProgress() {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"phase": p.String()})
	})

	// Session routes
	r.Route("/v1/session", func(r chi.Router) {
		r.Get("/events", streamEvents(src))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				snap, err := s.Snapshot(r.Context())
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, snap)
			})

			r.Post("/submit", func(w http.ResponseWriter, r *http.Request) {
				if err := s.Submit(r.Context()); err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusAccepted, map[string]string{"status": "submitting"})
			})

			r.Put("/transcript", func(w http.ResponseWriter, r *http.Request) {
				var req transcriptRequest
				if !decode(w, r, &req) {
					return
				}
				if err := s.EditTranscript(r.Context(), req.Text); err != nil {
					writeError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			r.Post("/recording", func(w http.ResponseWriter, r *http.Request) {
				var req recordingRequest
				if !decode(w, r, &req) {
					return
				}
				if err := s.SetRecording(r.Context(), req.On); err != nil {
					writeError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			r.Post("/input", func(w http.ResponseWriter, r *http.Request) {
				var ev security.InputEvent
				if !decode(w, r, &ev) {
					return
				}
				v, err := s.HandleInput(r.Context(), ev)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, v)
			})

			r.Post("/retry", func(w http.ResponseWriter, r *http.Request) {
				// Bootstrap may outlive the request timeout; run it detached.
				if s.Phase() == session.PhaseFailed {
					go func() {
						if err := s.Retry(context.Background()); err != nil {
							log.Warn().Err(err).Msg("Retry failed")
						}
					}()
					writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
					return
				}
				if err := s.Retry(r.Context()); err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
			})
		})
	})

	return r
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Write response failed")
	}
}

// writeError maps controller errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrEmptyTranscript):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrSubmitInProgress),
		errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrNothingToRetry),
		errors.Is(err, session.ErrAlreadyStarted),
		errors.Is(err, speech.ErrTranscriptLocked),
		errors.Is(err, speech.ErrMicrophoneUnavailable):
		status = http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		status = http.StatusGone
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.DefaultMetrics.RecordControlRequest(route, status)
	})
}
