// Claim loader for exercising a running ClaimGuard instance.
//
// Usage:
//
//	go run ./cmd/claimload -csv claims.csv -url http://localhost:8080 -tenant acme
//
// This tool:
//  1. Reads a claims CSV whose header uses upload column names
//     (claim_id, encounter_type, service_date, national_id, ...)
//  2. Uploads the rows in batches with validation deferred
//  3. Starts one validation pass and polls the job until it finishes
//  4. Prints the job counters and the tenant's error metrics
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// client talks to the ClaimGuard HTTP API for one tenant.
type client struct {
	baseURL  string
	tenantID string
	http     *http.Client
}

func main() {
	csvPath := flag.String("csv", "", "Path to claims CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "ClaimGuard base URL")
	tenantID := flag.String("tenant", "load-test", "Tenant ID for requests")
	limit := flag.Int("limit", 0, "Maximum claims to upload (0 = all)")
	batchSize := flag.Int("batch", 500, "Claims per upload request")
	workers := flag.Int("workers", 4, "Concurrent upload requests")
	timeout := flag.Duration("timeout", 10*time.Minute, "How long to wait for the validation job")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: claimload -csv /path/to/claims.csv [-url http://localhost:8080] [-tenant acme]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	c := &client{
		baseURL:  *baseURL,
		tenantID: *tenantID,
		http:     &http.Client{Timeout: 30 * time.Second},
	}

	fmt.Printf("CSV File:    %s\n", *csvPath)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Batch/Work:  %d / %d\n", *batchSize, *workers)
	fmt.Println()

	if err := c.checkHealth(); err != nil {
		fmt.Printf("ERROR: ClaimGuard not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	records, skipped, err := readClaimsCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d claims (%d malformed rows skipped)\n", len(records), skipped)

	start := time.Now()
	uploaded, failed := c.upload(records, *batchSize, *workers)
	fmt.Printf("Uploaded %d claims in %s (%d failed batches)\n", uploaded, time.Since(start).Round(time.Millisecond), failed)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start = time.Now()
	job, err := c.validate(ctx)
	if err != nil {
		fmt.Printf("ERROR: Validation failed: %v\n", err)
		os.Exit(1)
	}
	printResults(job, time.Since(start))

	metrics, err := c.metrics()
	if err != nil {
		fmt.Printf("ERROR: Failed to fetch metrics: %v\n", err)
		os.Exit(1)
	}
	printMetrics(metrics)

	if job.Status != domain.JobSucceeded {
		os.Exit(1)
	}
}

func (c *client) checkHealth() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// upload posts records in batches from a fixed pool of workers.
func (c *client) upload(records []domain.ClaimRecord, batchSize, workers int) (int64, int64) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if workers <= 0 {
		workers = 1
	}

	var uploaded, failed atomic.Int64
	work := make(chan []domain.ClaimRecord, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range work {
				if err := c.post("/api/claims?validate=false", map[string]any{"claims": batch}, nil); err != nil {
					failed.Add(1)
					fmt.Printf("ERROR: batch of %d -> %v\n", len(batch), err)
					continue
				}
				uploaded.Add(int64(len(batch)))
			}
		}()
	}

	for i := 0; i < len(records); i += batchSize {
		work <- records[i:min(i+batchSize, len(records))]
	}
	close(work)
	wg.Wait()

	return uploaded.Load(), failed.Load()
}

// validate starts a pass and polls its job until it is done or ctx expires.
func (c *client) validate(ctx context.Context) (*domain.ValidationJob, error) {
	var started struct {
		JobID string `json:"jobId"`
	}
	if err := c.post("/api/validations", nil, &started); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		var job domain.ValidationJob
		if err := c.get("/api/jobs/"+started.JobID, &job); err != nil {
			return nil, err
		}
		if job.Done() {
			return &job, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("job %s still %s: %w", started.JobID, job.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *client) metrics() ([]domain.Metric, error) {
	var resp struct {
		Metrics []domain.Metric `json:"metrics"`
	}
	if err := c.get("/api/metrics", &resp); err != nil {
		return nil, err
	}
	return resp.Metrics, nil
}

func (c *client) post(path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	return c.do(http.MethodPost, path, reader, out)
}

func (c *client) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *client) do(method, path string, body io.Reader, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, errors.New(apiErr.Error))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printResults(job *domain.ValidationJob, duration time.Duration) {
	fmt.Println("\nVALIDATION JOB")
	fmt.Printf("   Job:              %s\n", job.ID)
	fmt.Printf("   Status:           %s\n", job.Status)
	if job.Error != "" {
		fmt.Printf("   Error:            %s\n", job.Error)
	}
	fmt.Printf("   Selected:         %d\n", job.ClaimsSelected)
	fmt.Printf("   Validated:        %d\n", job.ClaimsValidated)
	fmt.Printf("   Not validated:    %d\n", job.ClaimsNotValidated)
	fmt.Printf("   Wall time:        %s\n", duration.Round(time.Millisecond))
	if secs := duration.Seconds(); secs > 0 && job.ClaimsSelected > 0 {
		fmt.Printf("   Throughput:       %.0f claims/sec\n", float64(job.ClaimsSelected)/secs)
	}
}

func printMetrics(metrics []domain.Metric) {
	fmt.Println("\nERROR METRICS")
	fmt.Printf("   %-18s %8s %14s\n", "Category", "Claims", "Paid (AED)")
	for _, m := range metrics {
		fmt.Printf("   %-18s %8d %14.2f\n", m.Category, m.Count, m.Paid)
	}
	fmt.Println()
}
