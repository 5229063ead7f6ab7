// Command docuqa runs the document question-answering pipeline against a
// single query, while serving health and metrics endpoints for the
// duration of the process.
//
// The flag parsing, background HTTP server goroutine, and signal-based
// graceful shutdown are grounded on the teacher's cmd/aixgo/main.go and
// pkg/observability.Server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	docuqa "github.com/docuqa-dev/docuqa"
	types "github.com/docuqa-dev/docuqa/pkg/docuqa"
	"github.com/docuqa-dev/docuqa/pkg/observability"
)

func main() {
	configPath := flag.String("config", "config/docuqa.yaml", "path to the pipeline configuration file")
	query := flag.String("query", "", "question to ask the pipeline")
	language := flag.String("lang", "", "ISO language hint for the query, if known")
	metricsPort := flag.Int("metrics-port", 9090, "port for the health and metrics HTTP server")
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: docuqa -config <path> -query \"<question>\"")
		os.Exit(2)
	}

	observability.InitMetrics()
	observability.InitHealthChecker().RegisterCheck(observability.PingCheck())
	srv := observability.NewServer(*metricsPort)

	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("observability server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resp, err := docuqa.Run(ctx, *configPath, types.Query{Text: *query, LanguageHint: *language})
	if err != nil {
		log.Fatalf("pipeline failed to start: %v", err)
	}

	encoded, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode response: %v", err)
	}
	fmt.Println(string(encoded))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("observability server shutdown error: %v", err)
	}
}
