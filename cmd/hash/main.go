// Package main is a utility for generating bcrypt hashes of API token values.
// FlakeWatch stores only bcrypt hashes of tokens, never the raw values, so this
// tool is used when manually seeding or verifying token records in the database
// without running the full server. Pass the raw token as the first argument;
// the resulting hash can be inserted directly into the api_tokens table.
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/flakewatch/flakewatch/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <raw-token>\n", os.Args[0])
		os.Exit(1)
	}

	token := os.Args[1]
	hash, err := bcrypt.GenerateFromPassword([]byte(token), auth.BcryptCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}
