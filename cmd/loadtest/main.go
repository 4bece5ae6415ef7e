// Command loadtest drives concurrent job queries against a running jobmap
// and reports throughput, latency percentiles and status codes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	PageSize    int
	MaxPages    int
	Workload    []Query
}

// Query is one workload entry. Either field may be blank.
type Query struct {
	Text     string
	Location string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	emptyResults  atomic.Int64
	followUps     atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

type page struct {
	Items   []json.RawMessage `json:"items"`
	Total   int               `json:"total"`
	HasMore bool              `json:"hasMore"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the jobmap service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	pageSize := flag.Int("limit", 50, "page size requested per query")
	maxPages := flag.Int("pages", 3, "pages to follow while hasMore is set")
	flag.Parse()

	workload := []Query{
		{Text: ""},
		{Text: "software engineer"},
		{Text: "pflege", Location: "zurich"},
		{Text: "nurse"},
		{Text: "project manager", Location: "bern"},
		{Text: "c++ developer"},
		{Text: "data scientist", Location: "basel"},
		{Text: "sales"},
		{Text: "elektriker"},
		{Text: "logistik", Location: "geneva"},
		{Location: "lausanne"},
		{Text: "teacher"},
		{Text: "enginer"},
		{Text: "marketing", Location: "zurich"},
		{Text: "astronaut"},
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		PageSize:    *pageSize,
		MaxPages:    max(*maxPages, 1),
		Workload:    workload,
	}

	fmt.Println("=== jobmap Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Workload:    %d queries, up to %d pages of %d\n", len(cfg.Workload), cfg.MaxPages, cfg.PageSize)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			idx := workerID
			for ctx.Err() == nil {
				q := cfg.Workload[idx%len(cfg.Workload)]
				idx++
				browse(ctx, client, cfg, q, stats)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// browse requests the first page of q and follows hasMore like a client
// scrolling through results.
func browse(ctx context.Context, client *http.Client, cfg Config, q Query, stats *Stats) {
	for p := 0; p < cfg.MaxPages; p++ {
		params := url.Values{}
		if q.Text != "" {
			params.Set("q", q.Text)
		}
		if q.Location != "" {
			params.Set("location", q.Location)
		}
		params.Set("limit", strconv.Itoa(cfg.PageSize))
		params.Set("offset", strconv.Itoa(p*cfg.PageSize))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/jobs?"+params.Encode(), nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "creating request: %v\n", err)
			os.Exit(1)
		}

		start := time.Now()
		resp, err := client.Do(req)
		duration := time.Since(start)
		if err != nil {
			if ctx.Err() == nil {
				stats.RecordRequest(duration, 0, err)
			}
			return
		}

		var body page
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		stats.RecordRequest(duration, resp.StatusCode, nil)

		if resp.StatusCode != http.StatusOK || decodeErr != nil {
			return
		}
		if p == 0 && body.Total == 0 {
			stats.emptyResults.Add(1)
		}
		if p > 0 {
			stats.followUps.Add(1)
		}
		if !body.HasMore {
			return
		}
	}
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Empty Results:   %d\n", stats.emptyResults.Load())
	fmt.Printf("Follow-up Pages: %d\n", stats.followUps.Load())

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is jobmap running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
