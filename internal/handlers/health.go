package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/services"
)

// HealthHandlers serves the /healthz and /readyz endpoints.
type HealthHandlers struct {
	build  services.BuildInfo
	system services.SystemService
	clock  func() time.Time
}

// HealthOption customises the health handler configuration.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo supplies build metadata embedded in health responses.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthSystemService supplies the service used for readiness dependency checks.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs handlers for the liveness and readiness endpoints.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock().UTC()
	}
	return h
}

// Healthz reports liveness. It never consults downstream dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()

	payload := map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if v := strings.TrimSpace(h.build.Version); v != "" {
		payload["version"] = v
	}
	if sha := strings.TrimSpace(h.build.CommitSHA); sha != "" {
		payload["commitSha"] = sha
	}
	if env := strings.TrimSpace(h.build.Environment); env != "" {
		payload["environment"] = env
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

type readyzCheckPayload struct {
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type readyzResponse struct {
	Status  string                        `json:"status"`
	Checks  map[string]readyzCheckPayload `json:"checks,omitempty"`
	Details []string                      `json:"details,omitempty"`
}

// Readyz reports readiness by probing downstream dependencies through the
// system service. Anything other than an all-ok report returns 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, readyzResponse{Status: domain.HealthStatusOK})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzResponse{
			Status:  domain.HealthStatusError,
			Details: []string{err.Error()},
		})
		return
	}

	response := readyzResponse{
		Status: report.Status,
		Checks: make(map[string]readyzCheckPayload, len(report.Checks)),
	}

	var failing []string
	for name, check := range report.Checks {
		entry := readyzCheckPayload{
			Status: check.Status,
			Detail: check.Detail,
		}
		if check.Latency > 0 {
			entry.Latency = check.Latency.String()
		}
		response.Checks[name] = entry
		if check.Status != domain.HealthStatusOK && check.Status != "" {
			message := name
			if check.Error != "" {
				message += ": " + check.Error
			}
			failing = append(failing, message)
		}
	}
	sort.Strings(failing)
	response.Details = failing

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, response)
}
