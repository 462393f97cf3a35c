package main

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	zeroResults   atomic.Int64
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

// RecordRequest counts one request. results is the number of hits in a
// successful response and is ignored otherwise.
func (s *Stats) RecordRequest(duration time.Duration, statusCode int, results int, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
		if results == 0 {
			s.zeroResults.Add(1)
		}
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

// LatencySummary is computed over successful and failed HTTP responses;
// transport errors carry no latency.
type LatencySummary struct {
	Min, Avg, P50, P90, P95, P99, Max, StdDev time.Duration
}

func (s *Stats) Latency() (LatencySummary, bool) {
	s.latenciesMu.Lock()
	latencies := make([]time.Duration, len(s.latencies))
	copy(latencies, s.latencies)
	s.latenciesMu.Unlock()

	if len(latencies) == 0 {
		return LatencySummary{}, false
	}
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg := sum / time.Duration(len(latencies))

	var sumSquared float64
	for _, l := range latencies {
		diff := float64(l) - float64(avg)
		sumSquared += diff * diff
	}
	return LatencySummary{
		Min:    latencies[0],
		Avg:    avg,
		P50:    percentile(latencies, 50),
		P90:    percentile(latencies, 90),
		P95:    percentile(latencies, 95),
		P99:    percentile(latencies, 99),
		Max:    latencies[len(latencies)-1],
		StdDev: time.Duration(math.Sqrt(sumSquared / float64(len(latencies)))),
	}, true
}

func printReport(stats *Stats, duration time.Duration) (ok bool) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Zero results:    %d\n", stats.zeroResults.Load())
	fmt.Printf("Errors:          %d\n", errors)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	if lat, ok := stats.Latency(); ok {
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", lat.Min)
		fmt.Printf("Avg:    %s\n", lat.Avg)
		fmt.Printf("P50:    %s\n", lat.P50)
		fmt.Printf("P90:    %s\n", lat.P90)
		fmt.Printf("P95:    %s\n", lat.P95)
		fmt.Printf("P99:    %s\n", lat.P99)
		fmt.Printf("Max:    %s\n", lat.Max)
		fmt.Printf("StdDev: %s\n", lat.StdDev)
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
		fmt.Println("WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
