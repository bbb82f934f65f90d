package health

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"lv-onboarding/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
)

const checkTimeout = time.Second

// Check pings one dependency.
type Check func(ctx context.Context) error

type Handler struct {
	checks    map[string]Check
	pool      *pgxpool.Pool
	startedAt time.Time
	httpAddr  string
	storage   string
}

func NewHandler(startedAt time.Time, httpAddr, storageDriver string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{
		checks:    map[string]Check{},
		startedAt: start,
		httpAddr:  strings.TrimSpace(httpAddr),
		storage:   strings.TrimSpace(storageDriver),
	}
}

// WithPool adds a database check and pool statistics to the full report.
func (h *Handler) WithPool(pool *pgxpool.Pool) *Handler {
	h.pool = pool
	h.checks["database"] = pool.Ping
	return h
}

func (h *Handler) WithCheck(name string, c Check) *Handler {
	h.checks[name] = c
	return h
}

type dependencyStat struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type readinessResponse struct {
	liveResponse
	Dependencies map[string]dependencyStat `json:"dependencies"`
}

type fullResponse struct {
	readinessResponse
	App     appStats     `json:"app"`
	Process processStats `json:"process"`
	Runtime runtimeStats `json:"runtime"`
	Pool    *poolStats   `json:"pool,omitempty"`
	Build   buildStats   `json:"build"`
}

type appStats struct {
	HTTPAddr string `json:"http_addr"`
	Storage  string `json:"storage"`
}

type processStats struct {
	PID      int    `json:"pid"`
	Hostname string `json:"hostname"`
	GoOS     string `json:"go_os"`
	GoArch   string `json:"go_arch"`
}

type runtimeStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	GoMaxProcs int    `json:"gomaxprocs"`
	HeapAlloc  uint64 `json:"heap_alloc_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

type poolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

type buildStats struct {
	MainPath string `json:"main_path"`
	Version  string `json:"version"`
}

func (h *Handler) live(now time.Time) liveResponse {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		uptime = 0
	}
	return liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	}
}

// probe runs every check concurrently.
func (h *Handler) probe(ctx context.Context) (map[string]dependencyStat, bool) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var mu sync.Mutex
	var wg sync.WaitGroup
	out := make(map[string]dependencyStat, len(names))
	for _, name := range names {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			err := check(ctx)
			stat := dependencyStat{Reachable: err == nil, PingMs: time.Since(start).Milliseconds()}
			if err != nil {
				stat.Error = err.Error()
			}
			mu.Lock()
			out[name] = stat
			mu.Unlock()
		}(name, h.checks[name])
	}
	wg.Wait()

	healthy := true
	for _, stat := range out {
		healthy = healthy && stat.Reachable
	}
	return out, healthy
}

// Live does not touch any dependency.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.live(time.Now().UTC()))
}

// Ready returns 503 when any dependency is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp, status := h.readiness(r.Context())
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) readiness(ctx context.Context) (readinessResponse, int) {
	deps, healthy := h.probe(ctx)
	resp := readinessResponse{liveResponse: h.live(time.Now().UTC()), Dependencies: deps}
	if !healthy {
		resp.Status = "degraded"
		return resp, http.StatusServiceUnavailable
	}
	return resp, http.StatusOK
}

// Full adds process diagnostics. Mount it behind the internal token.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	ready, status := h.readiness(r.Context())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	host, _ := os.Hostname()

	resp := fullResponse{
		readinessResponse: ready,
		App:               appStats{HTTPAddr: h.httpAddr, Storage: h.storage},
		Process: processStats{
			PID:      os.Getpid(),
			Hostname: host,
			GoOS:     runtime.GOOS,
			GoArch:   runtime.GOARCH,
		},
		Runtime: runtimeStats{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
			GoMaxProcs: runtime.GOMAXPROCS(0),
			HeapAlloc:  mem.HeapAlloc,
			NumGC:      mem.NumGC,
		},
	}
	if h.pool != nil {
		stat := h.pool.Stat()
		resp.Pool = &poolStats{
			TotalConns:    stat.TotalConns(),
			IdleConns:     stat.IdleConns(),
			AcquiredConns: stat.AcquiredConns(),
			MaxConns:      stat.MaxConns(),
		}
	}
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		resp.Build = buildStats{
			MainPath: strings.TrimSpace(info.Main.Path),
			Version:  strings.TrimSpace(info.Main.Version),
		}
	}
	httputil.WriteJSON(w, status, resp)
}
