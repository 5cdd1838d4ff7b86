package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	flags "github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/wavefronthq/loadsynth/internal/controlplane"
	"github.com/wavefronthq/loadsynth/internal/logging"
	"github.com/wavefronthq/loadsynth/internal/metrics"
	"github.com/wavefronthq/loadsynth/internal/recipe"
	"github.com/wavefronthq/loadsynth/internal/worker"
)

// Options is the worker binary's full command-line and config-file
// surface. Fields marked (*) in their description cannot be set from a
// config file, mirroring the teacher's config/flag split.
type Options struct {
	Identity struct {
		WorkerID string `long:"worker-id" description:"identity reported to the control plane; defaults to $WORKER_ID, then $HOSTNAME, then a generated id" yaml:",omitempty"`
	} `group:"Identity Options"`
	ControlPlane struct {
		URL          string        `long:"control-plane-url" description:"base URL of the control plane" default:"http://localhost:8080"`
		PollInterval time.Duration `long:"poll-interval" description:"assignment poll cadence" default:"30s"`
	} `group:"Control Plane Options"`
	Rate struct {
		BaseRate     float64 `long:"base-rate" description:"lines/second at multiplier=1 before ramping" default:"1.0"`
		Acceleration float64 `long:"acceleration" description:"rate governor ramp acceleration (lines/second^2)" default:"10.0"`
	} `group:"Rate Options"`
	Batch struct {
		BatchSize     int           `long:"batch-size" description:"Batch Buffer max lines" default:"1000"`
		BatchBytes    int           `long:"batch-bytes" description:"Batch Buffer max bytes" default:"1048576"`
		FlushInterval time.Duration `long:"flush-interval" description:"periodic buffer flush cadence" default:"5s"`
	} `group:"Batch Options"`
	Connection struct {
		BufferBytes      int           `long:"connection-buffer-bytes" description:"writer buffer per connection" default:"8192"`
		ReconnectInitial time.Duration `long:"reconnect-initial-ms" description:"initial reconnect backoff" default:"1s"`
		ReconnectMax     time.Duration `long:"reconnect-max-ms" description:"maximum reconnect backoff" default:"60s"`
	} `group:"Connection Options"`
	HTTP struct {
		Port        int `long:"port" description:"worker health/status HTTP port" default:"8081"`
		MetricsPort int `long:"metrics-port" description:"worker Prometheus metrics port" default:"9091"`
	} `group:"HTTP Options"`
	Global struct {
		LogLevel  string `long:"loglevel" description:"level of logging" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"warn"`
		DebugPort int    `long:"debugport" description:"port to listen on for pprof(*)" default:"-1" yaml:"-"`
		Config    string `long:"config" description:"name of config file to load(*)" default:"" yaml:"-"`
		WriteCfg  string `long:"writecfg" description:"write effective YAML config to the specified output file and quit(*)" default:"" yaml:"-"`
	} `group:"Global Options"`
}

func newOptions() *Options { return &Options{} }

func (o *Options) copyStarredFieldsFrom(other *Options) {
	o.Global.DebugPort = other.Global.DebugPort
	o.Global.Config = other.Global.Config
	o.Global.WriteCfg = other.Global.WriteCfg
}

func readConfig(opts *Options, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(opts); err != nil {
		return err
	}
	log.Printf("read config from %s\n", filename)
	return nil
}

func writeConfig(opts *Options, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := yaml.NewEncoder(f).Encode(opts); err != nil {
		return err
	}
	log.Printf("wrote config to %s\n", filename)
	return nil
}

// resolveWorkerID follows WORKER_ID, then HOSTNAME, then a generated
// identity, the same fallback order the source worker's getWorkerID used.
func resolveWorkerID(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("WORKER_ID"); v != "" {
		return v
	}
	if v := os.Getenv("HOSTNAME"); v != "" {
		return v
	}
	return "worker-" + uuid.NewString()
}

func main() {
	cmdopts := newOptions()

	parser := flags.NewParser(cmdopts, flags.Default)
	parser.Usage = `[OPTIONS]

	worker polls a control plane for its Assignment, loads a Family
	Synthesizer per assigned family from the recipe catalog, and drives
	each through a Rate Governor into per-endpoint TCP connections.

	Options can be set on the command line or in a YAML config file passed
	with --config; they are not read from environment variables, except that
	an unset --worker-id falls back to $WORKER_ID, then $HOSTNAME. Fields
	marked (*) in the help text cannot be set from a config file.
	`

	args, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("error reading command line: %v", err)
	}
	if len(args) > 0 {
		log.Fatalf("unexpected positional arguments: %v", args)
	}

	opts := newOptions()
	if cmdopts.Global.Config != "" {
		if err := readConfig(opts, cmdopts.Global.Config); err != nil {
			log.Fatalf("unable to read config file %s: %v", cmdopts.Global.Config, err)
		}
		opts.copyStarredFieldsFrom(cmdopts)
	} else {
		opts = cmdopts
	}

	if opts.Global.WriteCfg != "" {
		if err := writeConfig(opts, opts.Global.WriteCfg); err != nil {
			log.Fatalf("unable to write config: %v", err)
		}
		os.Exit(0)
	}

	if opts.Global.DebugPort > 0 {
		go http.ListenAndServe(fmt.Sprintf("localhost:%d", opts.Global.DebugPort), nil)
	}

	workerID := resolveWorkerID(opts.Identity.WorkerID)
	logger := logging.New(logging.ParseLevel(opts.Global.LogLevel), workerID)
	logger.Info("starting worker %s, control plane %s", workerID, opts.ControlPlane.URL)

	cp := controlplane.NewClient(opts.ControlPlane.URL, "")
	recipes := recipe.NewClient(opts.ControlPlane.URL, "")
	counters := metrics.NewWorker()

	w := worker.New(workerID, cp, recipes, counters, logger, worker.Options{
		WorkerID:         workerID,
		PollInterval:     opts.ControlPlane.PollInterval,
		BaseRate:         opts.Rate.BaseRate,
		Acceleration:     opts.Rate.Acceleration,
		MaxLines:         opts.Batch.BatchSize,
		MaxBytes:         opts.Batch.BatchBytes,
		FlushInterval:    opts.Batch.FlushInterval,
		MaxSendAttempts:  3,
		ConnBufferBytes:  opts.Connection.BufferBytes,
		ReconnectInitial: opts.Connection.ReconnectInitial,
		ReconnectMax:     opts.Connection.ReconnectMax,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("shutting down from operating system signal")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.PollAssignments(ctx)
	}()

	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", opts.HTTP.MetricsPort), Handler: counters.Handler()}
	statusSrv := &http.Server{Addr: fmt.Sprintf(":%d", opts.HTTP.Port), Handler: w.Router()}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server: %v", err)
		}
	}()

	w.MarkReady()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)
	statusSrv.Shutdown(shutdownCtx)

	wg.Wait()
	logger.Info("worker %s stopped", workerID)
}
