// Command atsctl submits and browses candidates against the candidate service.
//
//	atsctl submit --first-name Ada --last-name Lovelace --email ada@example.com --cv cv.pdf
//	atsctl list --search ada --experience 3-5 --sort name --sort name
//	atsctl get 42
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}
