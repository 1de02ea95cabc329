// Command sprd runs the license-gated access control service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"sprcli/internal/app"
	"sprcli/internal/config"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sprd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app.Version = version

	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	return application.Run(context.Background())
}
