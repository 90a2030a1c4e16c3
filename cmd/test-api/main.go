// Package main is a smoke-test utility that verifies the FlakeWatch HTTP API
// is reachable and returning valid responses. It hits the health and version
// endpoints and, when FLAKEWATCH_TOKEN is set, submits a small sample run to
// the ingestion endpoint. Useful for quick post-deployment checks without
// needing external tooling like curl or a full integration test suite.
package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := os.Getenv("FLAKEWATCH_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	get(baseURL + "/health")
	get(baseURL + "/version")

	token := os.Getenv("FLAKEWATCH_TOKEN")
	if token == "" {
		fmt.Println("FLAKEWATCH_TOKEN not set, skipping ingestion check")
		return
	}

	payload := fmt.Sprintf(`{
		"run_id": "tr_smoke_%d",
		"environment": "smoke-test",
		"timestamp": %q,
		"summary": {"total_test_cases": 1, "passed": 1, "failed": 0, "flaky": 0, "skipped": 0, "duration_ms": 1}
	}`, time.Now().Unix(), time.Now().UTC().Format(time.RFC3339))

	req, err := http.NewRequest("POST", baseURL+"/api/v1/runs", bytes.NewBufferString(payload))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("POST /api/v1/runs -> %d\n%s\n", resp.StatusCode, string(body))
}

func get(url string) {
	resp, err := http.Get(url)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("GET %s -> %d\n%s\n", url, resp.StatusCode, string(body))
}
