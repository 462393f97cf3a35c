package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Legacy      bool
	Queries     []string
}

var defaultQueries = []string{
	"cat sleeping",
	"dog in the park",
	"red bicycle",
	"sunset over the lake",
	"sailboat",
	"brick wall",
	"children playing football",
	"snowy mountain",
	"city skyline at night",
	"bowl of fruit",
	"the",
	"zebra",
}

func main() {
	cfg := Config{}
	pflag.StringVarP(&cfg.BaseURL, "url", "u", "http://localhost:3000", "base URL of the search service")
	pflag.IntVarP(&cfg.Concurrency, "concurrency", "c", 10, "number of concurrent workers")
	pflag.DurationVarP(&cfg.Duration, "duration", "d", 30*time.Second, "test duration")
	pflag.IntVar(&cfg.Limit, "limit", 10, "result limit for GET /api/v1/search")
	pflag.BoolVar(&cfg.Legacy, "legacy", false, "drive POST /search instead of GET /api/v1/search")
	pflag.StringSliceVarP(&cfg.Queries, "query", "q", defaultQueries, "queries to cycle through")
	pflag.Parse()

	fmt.Println("=== Summary Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Endpoint:    %s\n", endpointName(cfg))
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(stats, cfg.Duration) {
		os.Exit(1)
	}
}

func endpointName(cfg Config) string {
	if cfg.Legacy {
		return "POST /search"
	}
	return "GET /api/v1/search"
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
			queryIdx := workerID
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				start := time.Now()
				status, results, err := doSearch(ctx, client, cfg, query)
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(time.Since(start), status, results, err)
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

func doSearch(ctx context.Context, client *http.Client, cfg Config, query string) (status int, results int, err error) {
	var req *http.Request
	if cfg.Legacy {
		body, _ := json.Marshal(map[string]string{"query": query})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/search", bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.BaseURL, url.QueryEscape(query), cfg.Limit)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, 0, nil
	}

	results, err = countResults(resp.Body, cfg.Legacy)
	if err != nil {
		return resp.StatusCode, 0, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, results, nil
}

// countResults reads the hit count from either response shape: a bare array
// for POST /search or an object with a results array.
func countResults(r io.Reader, legacy bool) (int, error) {
	if legacy {
		var records []json.RawMessage
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return 0, err
		}
		return len(records), nil
	}
	var resp struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return 0, err
	}
	return len(resp.Results), nil
}
