package health

import (
	"Go2NetGuard/internal/model"
	"context"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func check(t *testing.T, s *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q) returned error: %v", service, err)
	}
	return resp.GetStatus()
}

func TestServer_TracksVerdicts(t *testing.T) {
	s := NewServer()
	for _, c := range model.Categories() {
		if got := check(t, s, ServiceName(c)); got != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("Expected %s to start SERVING, got %s", c, got)
		}
	}

	var r model.WindowReport
	for i := range r.Categories {
		r.Categories[i].Category = model.Category(i)
	}
	r.Categories[model.CategoryICMP].Verdict = model.Drop
	if err := s.Write(&r); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	if got := check(t, s, "nsguard.icmp"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected icmp NOT_SERVING while dropped, got %s", got)
	}
	if got := check(t, s, "nsguard.tcp"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected tcp SERVING, got %s", got)
	}
	if got := check(t, s, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected overall status SERVING, got %s", got)
	}

	r.Categories[model.CategoryICMP].Verdict = model.Pass
	s.Write(&r)
	if got := check(t, s, "nsguard.icmp"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected icmp SERVING after recovery, got %s", got)
	}
}

func TestServer_UnknownService(t *testing.T) {
	s := NewServer()
	_, err := s.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nsguard.carrier-pigeon"})
	if err == nil {
		t.Error("Expected NotFound for an unknown service")
	}
}
