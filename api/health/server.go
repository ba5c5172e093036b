// Package health serves the standard gRPC health protocol for a stress
// run. The "smr" service turns NOT_SERVING once a run reports a
// reclamation safety violation and stays that way.
package health

import (
	"log"
	"net"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the health service name clients check.
const Service = "smr"

type Server struct {
	hs      *health.Server
	grpc    *grpc.Server
	tainted atomic.Bool
}

func New() *Server {
	s := &Server{
		hs:   health.NewServer(),
		grpc: grpc.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.hs)
	s.hs.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Report records the violation count of a finished run.
func (s *Server) Report(tracker string, violations int64) {
	if violations == 0 || !s.tainted.CompareAndSwap(false, true) {
		return
	}
	log.Printf("[health] %s reported %d violations, marking NOT_SERVING", tracker, violations)
	s.hs.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
}

func (s *Server) Serve(lis net.Listener) error {
	log.Printf("[health] serving on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.hs.Shutdown()
	s.grpc.GracefulStop()
}
