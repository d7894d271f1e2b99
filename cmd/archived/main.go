// Command archived serves the fetch-and-zip HTTP endpoint: POST a JSON list
// of {url, filename} pairs and receive a streamed ZIP archive of their
// contents.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/jgraydus/archived/internal/fetchzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "archived",
		Usage: "stream a ZIP archive built from fetched URLs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "address to listen on",
				Value: ":8080",
			},
			&cli.DurationFlag{
				Name:  "fetch-timeout",
				Usage: "per-URL upstream fetch timeout",
				Value: 30 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.String("addr"), c.Duration("fetch-timeout"))
		},
	}
}

func run(addr string, fetchTimeout time.Duration) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	registry := prometheus.NewRegistry()
	metrics := fetchzip.NewMetrics(registry)
	handler := fetchzip.NewHandler(http.DefaultClient, fetchTimeout, log, metrics)

	router := mux.NewRouter()
	router.Handle("/archive", handler).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	log.Info().Str("addr", addr).Dur("fetch_timeout", fetchTimeout).Msg("listening")
	return http.ListenAndServe(addr, router)
}
