// Package main is a diagnostic tool for testing database connectivity and
// inspecting live FlakeWatch data. It connects to the database, queries the
// projects and test_runs tables, and prints a summary to stdout. The binary
// exits with a non-zero code on any failure so it can be embedded in health
// checks or CI/CD pipeline steps to gate deployments on a reachable, populated
// database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	if dbPassword == "" {
		dbPassword = "flakewatch"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=flakewatch password=%s dbname=flakewatch sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	// Check projects
	fmt.Println("=== PROJECTS ===")
	rows, err := db.Query("SELECT p.id, o.name, p.name FROM projects p JOIN organizations o ON o.id = p.organization_id")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, orgName, name string
		if err := rows.Scan(&id, &orgName, &name); err != nil {
			log.Printf("Warning: failed to scan project row: %v", err)
			continue
		}
		fmt.Printf("Project: %s/%s (ID: %s)\n", orgName, name, id)
	}

	// Check stored runs
	fmt.Println("\n=== TEST RUNS ===")
	rows2, err := db.Query("SELECT project_id, COUNT(*), MAX(created_at) FROM test_runs GROUP BY project_id")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows2.Close()

	count := 0
	for rows2.Next() {
		var projectID, lastRun string
		var runs int
		if err := rows2.Scan(&projectID, &runs, &lastRun); err != nil {
			log.Printf("Warning: failed to scan run row: %v", err)
			continue
		}
		fmt.Printf("Project %s: %d runs (last: %s)\n", projectID, runs, lastRun)
		count++
	}

	if count == 0 {
		fmt.Println("No runs found!")
	}
}
