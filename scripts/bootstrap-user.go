package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/asset"
	"github.com/spotshare/spotshare/internal/auth"
	"github.com/spotshare/spotshare/internal/repository"
	"github.com/spotshare/spotshare/internal/service"
)

// Creates a user directly in the database, or logs in when the email is
// taken, and prints a bearer token for it.
func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		jwtSecret   = flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "Token signing secret")
		name        = flag.String("name", "Admin", "User name")
		email       = flag.String("email", "admin@spotshare.local", "User email")
		password    = flag.String("password", "", "User password (min 6 characters)")
		ttl         = flag.Duration("ttl", time.Hour, "Token lifetime")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" || *jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL and JWT_SECRET are required")
		os.Exit(1)
	}
	if *password == "" {
		fmt.Fprintln(os.Stderr, "-password is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := service.NewUserService(
		repo,
		// No avatar is uploaded from the CLI.
		asset.NewMemoryStore(""),
		auth.NewHasher(auth.DefaultParams),
		auth.NewCredentials(*jwtSecret, *ttl, nil),
		logger,
	)

	result, err := users.Signup(ctx, service.SignupInput{Name: *name, Email: *email, Password: *password})
	if apperror.KindOf(err) == apperror.KindConflict {
		result, err = users.Login(ctx, *email, *password)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap user:", apperror.MessageOf(err, err.Error()))
		os.Exit(1)
	}

	if *format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintln(os.Stderr, "encode output:", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("User ID: %s\n", result.UserID)
	fmt.Printf("Email: %s\n", result.Email)
	fmt.Printf("Token: %s\n", result.Token)
}
