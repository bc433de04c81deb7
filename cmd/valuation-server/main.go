// Command valuation-server serves the analysis over HTTP: runs are started
// with POST /api/analysis/runs and their step progress is streamed on /ws.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ethvaluation/internal/app"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to ./config.yaml when present)")
	baseDir := flag.String("base", "", "directory relative paths are anchored at (defaults to the executable's directory)")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Println(app.AppName, app.Version)
		return
	}

	application, err := app.New(app.Options{ConfigPath: *configPath, BaseDir: *baseDir})
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		application.Logger.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
