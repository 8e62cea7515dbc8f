// ABOUTME: CLI for minting admin JWTs and bcrypt password hashes
// ABOUTME: Useful for bootstrapping a deployment before the login endpoint is reachable

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/crypto/bcrypt"

	"github.com/uniintel/admin-gateway/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "mint":
		err = cmdMint(args)
	case "hash":
		err = cmdHash(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: admin-token <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  mint --email EMAIL [--ttl DURATION]  Mint an admin JWT (reads JWT_SECRET)")
	fmt.Println("  hash --password PASSWORD             Print a bcrypt hash for the admin password")
}

func cmdMint(args []string) error {
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	email := fs.String("email", "", "admin email to embed in the token")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}

	token, err := auth.NewJWTVerifier([]byte(secret)).Generate(*email, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("Token: ")
	fmt.Println(token)
	gray := color.New(color.FgHiBlack)
	gray.Printf("expires %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	return nil
}

func cmdHash(args []string) error {
	fs := flag.NewFlagSet("hash", flag.ExitOnError)
	password := fs.String("password", "", "password to hash")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *password == "" {
		return fmt.Errorf("--password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	fmt.Println(string(hash))
	return nil
}
