// simulate drives concurrent scheduling conversations against a running
// api-server and then checks the booking invariant directly in Postgres:
// no slot may carry more than one live appointment, no matter how many
// sessions fought over it.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/scheduling-assistant/internal/config"
	"github.com/clinicdesk/scheduling-assistant/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	DayRange    int // how many days ahead a session may ask for
	PostgresDSN string
}

type OperationMetrics struct {
	Total     int64
	Booked    int64
	Reoffers  int64
	NoSlots   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) RecordLatency(latency time.Duration) {
	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Simulator struct {
	config  SimConfig
	doctors []uuid.UUID
	client  *http.Client
	metrics OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d day_range=%d api=%s",
		cfg.Duration, cfg.Workers, cfg.DayRange, cfg.APIBaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	doctors, err := loadDoctors(ctx, pgPool)
	if err != nil {
		log.Fatalf("load doctors: %v", err)
	}
	log.Printf("loaded: %d doctors", len(doctors))

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config:  cfg,
		doctors: doctors,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()

	if err := verifyNoDoubleBooking(context.Background(), pgPool); err != nil {
		log.Fatalf("INTEGRITY FAILURE: %v", err)
	}
	log.Println("integrity check passed: no slot is double-booked")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		DayRange:    getInt("SIM_DAY_RANGE", 7),
		PostgresDSN: baseCfg.PostgresDSN,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDoctors(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM doctors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		doctors = append(doctors, id)
	}
	if len(doctors) == 0 {
		return nil, fmt.Errorf("no doctors found, run the seed first")
	}
	return doctors, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			s.runConversation(ctx, rng)
		}
	}
}

type sessionReply struct {
	ID    uuid.UUID `json:"id"`
	State string    `json:"state"`
	Slots []struct {
		ID uuid.UUID `json:"id"`
	} `json:"slots"`
	Appointment *struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	} `json:"appointment"`
}

// runConversation plays one scripted patient through the session API:
// identify, pick a doctor and day, choose a slot, hand over insurance,
// confirm. Lost claim races show up as re-offers and are retried within
// the same session.
func (s *Simulator) runConversation(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	atomic.AddInt64(&s.metrics.Total, 1)

	reply, status, err := s.post(ctx, "/sessions", nil)
	if err != nil || status != http.StatusCreated {
		atomic.AddInt64(&s.metrics.Error, 1)
		return
	}
	inputPath := "/sessions/" + reply.ID.String() + "/input"

	reply, status, err = s.post(ctx, inputPath, map[string]any{
		"type":          "identify",
		"first_name":    gofakeit.FirstName(),
		"last_name":     gofakeit.LastName(),
		"date_of_birth": gofakeit.DateRange(
			time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2010, 12, 31, 0, 0, 0, 0, time.UTC),
		).Format("2006-01-02"),
	})
	if err != nil || status != http.StatusOK {
		atomic.AddInt64(&s.metrics.Error, 1)
		return
	}

	doctorID := s.doctors[rng.Intn(len(s.doctors))]
	day := time.Now().AddDate(0, 0, 1+rng.Intn(s.config.DayRange)).Format("2006-01-02")

	reply, status, err = s.post(ctx, inputPath, map[string]any{
		"type":      "constraints",
		"doctor_id": doctorID.String(),
		"day":       day,
	})
	if err != nil || status != http.StatusOK {
		atomic.AddInt64(&s.metrics.Error, 1)
		return
	}
	if len(reply.Slots) == 0 {
		atomic.AddInt64(&s.metrics.NoSlots, 1)
		s.abort(ctx, inputPath)
		return
	}

	// Everyone grabs from the front of the list to maximize contention.
	for reply.State == "await_selection" {
		prev := len(reply.Slots)
		reply, status, err = s.post(ctx, inputPath, map[string]any{
			"type":    "select_slot",
			"slot_id": reply.Slots[0].ID.String(),
		})
		if err != nil || status != http.StatusOK {
			atomic.AddInt64(&s.metrics.Error, 1)
			return
		}
		if reply.State == "await_selection" && len(reply.Slots) < prev {
			atomic.AddInt64(&s.metrics.Reoffers, 1)
		}
		if reply.State == "offer_slots" {
			atomic.AddInt64(&s.metrics.NoSlots, 1)
			s.abort(ctx, inputPath)
			return
		}
	}

	reply, status, err = s.post(ctx, inputPath, map[string]any{
		"type":      "insurance",
		"carrier":   gofakeit.Company(),
		"member_id": fmt.Sprintf("M-%d", gofakeit.Number(10000, 99999)),
	})
	if err != nil || status != http.StatusOK {
		atomic.AddInt64(&s.metrics.Error, 1)
		return
	}

	reply, status, err = s.post(ctx, inputPath, map[string]any{
		"type":   "decision",
		"accept": true,
	})
	if err != nil || status != http.StatusOK || reply.Appointment == nil {
		atomic.AddInt64(&s.metrics.Error, 1)
		return
	}

	atomic.AddInt64(&s.metrics.Booked, 1)
	s.metrics.RecordLatency(time.Since(start))
}

func (s *Simulator) abort(ctx context.Context, inputPath string) {
	_, _, _ = s.post(ctx, inputPath, map[string]any{"type": "abort", "reason": "simulation"})
}

func (s *Simulator) post(ctx context.Context, path string, body any) (sessionReply, int, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return sessionReply{}, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return sessionReply{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return sessionReply{}, 0, err
	}
	defer resp.Body.Close()

	var out sessionReply
	if resp.StatusCode < 400 {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return sessionReply{}, resp.StatusCode, err
		}
	}
	return out, resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	avg, min, max, p50, p95 := s.metrics.Stats()

	fmt.Println()
	fmt.Println("=== simulation report ===")
	fmt.Printf("conversations: %d\n", atomic.LoadInt64(&s.metrics.Total))
	fmt.Printf("booked:        %d\n", atomic.LoadInt64(&s.metrics.Booked))
	fmt.Printf("reoffers:      %d\n", atomic.LoadInt64(&s.metrics.Reoffers))
	fmt.Printf("no slots:      %d\n", atomic.LoadInt64(&s.metrics.NoSlots))
	fmt.Printf("errors:        %d\n", atomic.LoadInt64(&s.metrics.Error))
	fmt.Printf("latency (booked): avg=%s min=%s max=%s p50=%s p95=%s\n", avg, min, max, p50, p95)
	fmt.Println()
}

func verifyNoDoubleBooking(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT slot_id, count(*)
		FROM appointments
		WHERE status != 'cancelled'
		GROUP BY slot_id
		HAVING count(*) > 1
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var violations int
	for rows.Next() {
		var slotID uuid.UUID
		var n int
		if err := rows.Scan(&slotID, &n); err != nil {
			return err
		}
		log.Printf("slot %s has %d live appointments", slotID, n)
		violations++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if violations > 0 {
		return fmt.Errorf("%d slots double-booked", violations)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
