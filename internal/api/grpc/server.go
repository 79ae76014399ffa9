// Package grpcapi exposes the agent's gRPC health service. The session
// service status follows the interview phase.
package grpcapi

import (
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/service/session"
)

// ServiceName is the health service name reported for the interview session.
const ServiceName = "ascend.interview.Session"

var servingPhases = map[string]bool{
	session.PhaseActive.String():        true,
	session.PhaseSubmitting.String():    true,
	session.PhaseTransitioning.String(): true,
	session.PhaseFinalizing.String():    true,
}

// Health tracks the session phase on a gRPC health server.
type Health struct {
	server *health.Server
	phase  string
}

// Register installs the health service on g. The process is reported
// serving; the session service starts not serving until the interview runs.
func Register(g *grpc.Server) *Health {
	h := &Health{server: health.NewServer()}
	grpc_health_v1.RegisterHealthServer(g, h.server)
	h.server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// Observe updates the session status from a phase event. Other events are ignored.
func (h *Health) Observe(ev models.Event) {
	if ev.Type != models.EventPhase {
		return
	}
	pc, ok := ev.Data.(models.PhaseChange)
	if !ok || pc.Phase == h.phase {
		return
	}
	h.phase = pc.Phase

	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if servingPhases[pc.Phase] {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	log.Debug().Str("phase", pc.Phase).Str("status", st.String()).Msg("session health updated")
	h.server.SetServingStatus(ServiceName, st)
}

// Shutdown marks every service not serving and rejects further updates.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}
