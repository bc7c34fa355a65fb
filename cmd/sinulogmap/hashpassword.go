package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"sinulogmap/internal/auth"
)

// hashPassword prints an argon2id hash for basic_auth.password_hash.
func hashPassword(args []string) int {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sinulogmap hash-password\n\n")
		fmt.Fprintf(os.Stderr, "Reads a password from the terminal and prints its argon2id hash\n")
		fmt.Fprintf(os.Stderr, "for basic_auth.password_hash in config.yaml.\n")
	}
	_ = fs.Parse(args)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(os.Stderr, "hash-password needs an interactive terminal")
		return 1
	}

	fmt.Fprint(os.Stderr, "Enter password:   ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		return 1
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	confirm, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password confirmation: %v\n", err)
		return 1
	}

	if len(pw) == 0 {
		fmt.Fprintln(os.Stderr, "Password cannot be empty")
		return 1
	}
	if string(pw) != string(confirm) {
		fmt.Fprintln(os.Stderr, "Passwords do not match")
		return 1
	}

	hash, err := auth.HashPassword(string(pw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(hash)
	return 0
}
