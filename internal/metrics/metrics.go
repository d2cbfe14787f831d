// Package metrics exposes process-local Prometheus counters/gauges for
// the judging pipeline, plus a Redis-backed worker heartbeat consumed by
// the admin status endpoint.
package metrics

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Collector wraps the Prometheus registry for this process.
type Collector struct {
	JobsProcessed prometheus.Counter
	JobsFailed    prometheus.Counter
	QueueDepth    prometheus.Gauge
	CaseOutcomes  *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		JobsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oj_jobs_processed_total",
			Help: "Total jobs that reached state=finished.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oj_jobs_failed_total",
			Help: "Total jobs that finished with result=system_error.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oj_queue_depth",
			Help: "Jobs currently queueing or running in memory.",
		}),
		CaseOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oj_case_outcomes_total",
			Help: "Per-case judged outcomes by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(c.JobsProcessed, c.JobsFailed, c.QueueDepth, c.CaseOutcomes)
	return c
}

// Heartbeat is the per-worker liveness record published to Redis.
type Heartbeat struct {
	WorkerID       string    `json:"worker_id"`
	Hostname       string    `json:"hostname"`
	PID            int       `json:"pid"`
	Status         string    `json:"status"` // idle|busy|starting
	CurrentJob     int32     `json:"current_job,omitempty"`
	ProcessedTotal int64     `json:"processed_total"`
	FailedTotal    int64     `json:"failed_total"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const (
	heartbeatPrefix = "oj:worker:heartbeat:"
	heartbeatTTL    = 45 * time.Second
)

// HeartbeatState tracks one worker's aggregate status and periodically
// flushes it to Redis under a TTL key.
type HeartbeatState struct {
	mu sync.Mutex
	hb Heartbeat
}

func NewHeartbeatState(workerID string) *HeartbeatState {
	hostname, _ := os.Hostname()
	return &HeartbeatState{hb: Heartbeat{
		WorkerID:  workerID,
		Hostname:  hostname,
		PID:       os.Getpid(),
		Status:    "starting",
		StartedAt: time.Now(),
	}}
}

func (s *HeartbeatState) JobStarted(jobID int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hb.Status = "busy"
	s.hb.CurrentJob = jobID
}

func (s *HeartbeatState) JobFinished(failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hb.Status = "idle"
	s.hb.CurrentJob = 0
	s.hb.ProcessedTotal++
	if failed {
		s.hb.FailedTotal++
	}
}

// Snapshot returns a copy of the current heartbeat record.
func (s *HeartbeatState) Snapshot() Heartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hb
}

// Start periodically flushes the heartbeat to client until ctx is
// canceled.
func (s *HeartbeatState) Start(ctx context.Context, client *redis.Client) {
	s.flush(ctx, client)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx, client)
		}
	}
}

func (s *HeartbeatState) flush(ctx context.Context, client *redis.Client) {
	s.mu.Lock()
	s.hb.UpdatedAt = time.Now()
	hb := s.hb
	s.mu.Unlock()
	data, err := json.Marshal(hb)
	if err != nil {
		return
	}
	_ = client.Set(ctx, heartbeatPrefix+hb.WorkerID, data, heartbeatTTL).Err()
}

// Status aggregates queue depth and runtime info for GET /internal/status.
type Status struct {
	QueuePending  int    `json:"queue_pending"`
	WorkerStatus  string `json:"worker_status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	NumGoroutine  int    `json:"num_goroutine"`
}

func Collect(queueDepth int, workerStatus string, startedAt time.Time) Status {
	return Status{
		QueuePending:  queueDepth,
		WorkerStatus:  workerStatus,
		UptimeSeconds: int64(time.Since(startedAt).Seconds()),
		NumGoroutine:  runtime.NumGoroutine(),
	}
}
