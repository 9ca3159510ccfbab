// Command healthcheck probes the notifier's liveness endpoint for container
// health checks. HEALTHCHECK_URL overrides the default target.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"
)

const defaultURL = "http://localhost:8080/healthz"

func main() {
	target := os.Getenv("HEALTHCHECK_URL")
	if target == "" {
		target = defaultURL
	}
	os.Exit(check(context.Background(), &http.Client{Timeout: 3 * time.Second}, target))
}

// check returns the process exit code for one probe of target.
func check(ctx context.Context, client *http.Client, target string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 1
	}
	resp, err := client.Do(req)
	if err != nil {
		return 1
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
