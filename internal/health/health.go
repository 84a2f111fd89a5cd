package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// State — состояние компонента или сервиса в целом.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// probeTimeout ограничивает каждую отдельную проверку, чтобы зависший
// компонент не блокировал весь health endpoint.
const probeTimeout = 2 * time.Second

// Probe проверяет один компонент. Ошибка означает unhealthy.
type Probe func(ctx context.Context) error

// ComponentStatus — результат одной проверки в ответе.
type ComponentStatus struct {
	State      State  `json:"state"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report — полный ответ health endpoint.
type Report struct {
	State         State                      `json:"state"`
	Version       string                     `json:"version,omitempty"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Components    map[string]ComponentStatus `json:"components,omitempty"`
	CheckedAt     time.Time                  `json:"checked_at"`
}

// Registry хранит проверки компонентов и отдаёт health/readiness endpoints.
type Registry struct {
	mu       sync.RWMutex
	probes   map[string]Probe
	optional map[string]bool
	version  string
	started  time.Time
}

// NewRegistry создаёт реестр проверок.
func NewRegistry(version string) *Registry {
	return &Registry{
		probes:   make(map[string]Probe),
		optional: make(map[string]bool),
		version:  version,
		started:  time.Now(),
	}
}

// Register добавляет обязательную проверку: её ошибка делает сервис unhealthy.
func (r *Registry) Register(name string, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = probe
}

// RegisterOptional добавляет необязательную проверку: её ошибка
// понижает состояние лишь до degraded.
func (r *Registry) RegisterOptional(name string, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = probe
	r.optional[name] = true
}

func (r *Registry) snapshot() (map[string]Probe, map[string]bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	probes := make(map[string]Probe, len(r.probes))
	optional := make(map[string]bool, len(r.optional))
	for name, p := range r.probes {
		probes[name] = p
	}
	for name, opt := range r.optional {
		optional[name] = opt
	}
	return probes, optional
}

// Run выполняет все проверки и сводит их в отчёт.
func (r *Registry) Run(ctx context.Context) Report {
	probes, optional := r.snapshot()

	components := make(map[string]ComponentStatus, len(probes))
	overall := StateHealthy

	for name, probe := range probes {
		status := runProbe(ctx, probe)
		components[name] = status

		if status.State != StateUnhealthy {
			continue
		}
		if optional[name] {
			status.State = StateDegraded
			components[name] = status
			if overall == StateHealthy {
				overall = StateDegraded
			}
			continue
		}
		overall = StateUnhealthy
	}

	return Report{
		State:         overall,
		Version:       r.version,
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
		Components:    components,
		CheckedAt:     time.Now().UTC(),
	}
}

func runProbe(ctx context.Context, probe Probe) ComponentStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := probe(ctx)
	status := ComponentStatus{
		State:      StateHealthy,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.State = StateUnhealthy
		status.Error = err.Error()
	}
	return status
}

// Handler отдаёт полный отчёт; 503 только при unhealthy.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		report := r.Run(req.Context())

		code := http.StatusOK
		if report.State == StateUnhealthy {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// ReadinessHandler — готовность принимать трафик: любая обязательная
// проверка с ошибкой даёт 503.
func (r *Registry) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		report := r.Run(req.Context())
		if report.State == StateUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

// LivenessHandler — признак живого процесса, всегда 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
