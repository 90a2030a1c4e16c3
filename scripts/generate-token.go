// Package main is a development utility for generating a test API token with
// its bcrypt hash and display prefix pre-computed. It prints the raw token,
// hash, prefix, and a ready-to-run SQL INSERT statement so developers can
// quickly seed a usable token in a local database without running the full
// server flow. Do not use generated tokens in production; use the token
// issuance API so the record is tied to a real project.
package main

import (
	"fmt"
	"log"

	"github.com/flakewatch/flakewatch/internal/auth"
)

func main() {
	rawToken, hash, displayPrefix, err := auth.GenerateToken("fw")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("API Token Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nRaw Token: %s\n", rawToken)
	fmt.Printf("\nHash: %s\n", hash)
	fmt.Printf("\nDisplay Prefix: %s\n", displayPrefix)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO api_tokens (id, project_id, name, token_hash, token_prefix)
VALUES (gen_random_uuid(),
        (SELECT id FROM projects LIMIT 1),
        'dev token',
        '%s',
        '%s');
`, hash, displayPrefix)
	fmt.Println("\n==========================================================")
	fmt.Printf("Authorization Header: Bearer %s\n", rawToken)
	fmt.Println("==========================================================")
}
