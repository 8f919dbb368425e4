package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/peterbourgon/ff/v3"

	"github.com/livepeer/videogw/config"
	"github.com/livepeer/videogw/handlers"
	"github.com/livepeer/videogw/internal/coalesce"
	cacheorch "github.com/livepeer/videogw/internal/gateway"
	"github.com/livepeer/videogw/internal/kvstore"
	"github.com/livepeer/videogw/internal/origin"
	"github.com/livepeer/videogw/internal/transform"
	"github.com/livepeer/videogw/internal/version"
	"github.com/livepeer/videogw/log"
	"github.com/livepeer/videogw/metrics"
	"github.com/livepeer/videogw/middleware"
)

func main() {
	if err := flag.Set("logtostderr", "true"); err != nil {
		glog.Fatal(err)
	}
	vFlag := flag.Lookup("v")
	fs := flag.NewFlagSet("videogw-server", flag.ExitOnError)
	cli := config.Cli{}

	printVersion := fs.Bool("version", false, "print application version")
	config.AddrFlag(fs, &cli.HTTPAddress, "http-addr", "0.0.0.0:8989", "Address to bind for gateway HTTP handling")
	fs.StringVar(&cli.ConfigPath, "config-path", "", "Path to the gateway configuration document (origins, cache, video, debug)")
	fs.StringVar(&cli.BackendBaseURL, "backend-base-url", "http://127.0.0.1:8090", "Scheme and host of the media-transformation backend")
	fs.StringVar(&cli.KVStoreURL, "kv-store-url", "file://./videogw-cache", "Object-storage URL (s3://, gs://, file://) backing the chunked KV cache")
	fs.IntVar(&cli.PromPort, "prom-port", 9091, "Prometheus metrics listen port")
	fs.DurationVar(&cli.RequestTimeout, "request-timeout", 30*time.Second, "Timeout applied to each backend transformation request")
	fs.BoolVar(&cli.DebugEnabled, "debug", false, "Allow clients to request diagnostics via ?debug=")
	fs.BoolVar(&cli.VerboseDebug, "debug-verbose", false, "Include the full diagnostics JSON body regardless of ?debug= mode")
	verbosity := fs.String("v", "", "Log verbosity. {4|5|6}")
	_ = fs.String("config", "", "flag config file (optional)")

	err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("VIDEOGW"),
	)
	if err != nil {
		glog.Fatalf("error parsing cli: %s", err)
	}

	if *printVersion {
		fmt.Printf("videogw-server version: %s\n", config.Version)
		return
	}
	if *verbosity != "" {
		if err := vFlag.Value.Set(*verbosity); err != nil {
			glog.Fatal(err)
		}
	}

	gatewayConfig, err := loadGatewayConfig(cli.ConfigPath)
	if err != nil {
		glog.Fatalf("error loading gateway config: %s", err)
	}
	if cli.DebugEnabled {
		gatewayConfig.Debug.Enabled = true
	}
	if cli.VerboseDebug {
		gatewayConfig.Debug.Verbose = true
	}

	table, err := buildOriginTable(gatewayConfig)
	if err != nil {
		glog.Fatalf("error building origin table: %s", err)
	}

	kv, err := kvstore.New(cli.KVStoreURL)
	if err != nil {
		glog.Fatalf("error opening KV store %q: %s", log.RedactURL(cli.KVStoreURL), err)
	}

	invoker := transform.NewInvoker(cli.BackendBaseURL, cli.RequestTimeout, log.NewRetryableHTTPLogger())

	gw := &handlers.GatewayHandler{
		Origins:      table,
		Orchestrator: cacheorch.New(kv, coalesce.New(), version.NewService(kv)),
		Invoker:      invoker,
		Config:       gatewayConfig,
		Breakpoints:  handlers.BuildBreakpoints(gatewayConfig.Video.Derivatives),
	}

	go func() {
		if err := metrics.ListenAndServe(cli.PromPort); err != nil {
			log.LogNoRequestID("metrics server exited", "error", err)
		}
	}()

	router := newRouter(gw)
	log.LogNoRequestID("starting videogw-server", "version", config.Version, "listen", cli.HTTPAddress)
	glog.Fatal(http.ListenAndServe(cli.HTTPAddress, router))
}

// newRouter mounts the gateway handler under a single catch-all route; the health
// check and Prometheus metrics are served on the separate internal port started by
// metrics.ListenAndServe, since httprouter does not allow a static sibling route
// alongside a root-level wildcard.
func newRouter(gw *handlers.GatewayHandler) *httprouter.Router {
	router := httprouter.New()
	router.GET("/*path", middleware.LogRequest()(middleware.AllowCORS()(gw.Handle)))
	return router
}

// loadGatewayConfig reads and parses the gateway configuration document from disk.
// The production deployment instead serves this from the durable KV store's
// "worker-config" key via an authenticated admin endpoint (config.ConfigSource); a
// local file is this binary's cold-start seam for that same parse/validate step.
func loadGatewayConfig(path string) (*config.GatewayConfig, error) {
	if path == "" {
		return &config.GatewayConfig{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	return config.FromJSON(raw)
}

// buildOriginTable converts the parsed configuration's origins into the runtime
// origin.Table (§4.C), compiling each matcher pattern.
func buildOriginTable(cfg *config.GatewayConfig) (*origin.Table, error) {
	origins := make([]origin.Origin, 0, len(cfg.Origins))
	for _, oc := range cfg.Origins {
		o, err := origin.CompileConfig(oc)
		if err != nil {
			return nil, fmt.Errorf("origin %q: %w", oc.Name, err)
		}
		origins = append(origins, o)
	}
	return origin.NewTable(origins), nil
}
