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

	flags "github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/wavefronthq/loadsynth/internal/logging"
	"github.com/wavefronthq/loadsynth/internal/metrics"
	"github.com/wavefronthq/loadsynth/internal/monitor"
	"github.com/wavefronthq/loadsynth/internal/recipe"
)

// Options is the monitor binary's full command-line and config-file
// surface.
type Options struct {
	Reference struct {
		Path         string        `long:"reference-path" description:"base URL of the recipe catalog reference statistics are derived from" default:"http://localhost:8080"`
		RefreshEvery time.Duration `long:"reference-refresh" description:"how often to re-poll the recipe catalog for new or changed families" default:"5m"`
	} `group:"Reference Options"`
	Thresholds struct {
		JSThreshold          float64 `long:"js-threshold" description:"Jensen-Shannon divergence red threshold" default:"0.05"`
		WassersteinThreshold float64 `long:"wasserstein-threshold" description:"Wasserstein-like distance red threshold" default:"0.1"`
		KSThreshold          float64 `long:"ks-threshold" description:"KS-like statistic red threshold" default:"0.05"`
		RedMinutes           int     `long:"red-minutes" description:"consecutive red minutes before a critical alert" default:"15"`
	} `group:"Threshold Options"`
	Window struct {
		Size        time.Duration `long:"window-size" description:"sliding window duration" default:"5m"`
		MaxSamples  int           `long:"window-max-samples" description:"sliding window sample cap" default:"10000"`
		ComputeTick time.Duration `long:"compute-tick" description:"divergence compute cadence" default:"1m"`
	} `group:"Window Options"`
	HTTP struct {
		Port        int `long:"port" description:"monitor status HTTP port" default:"8082"`
		MetricsPort int `long:"metrics-port" description:"monitor Prometheus metrics port" default:"9092"`
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

// refreshReferences polls the recipe catalog and (re)registers a
// FamilyMonitor for every recipe found, so a newly published family
// starts being scored without a monitor restart.
func refreshReferences(mon *monitor.Monitor, recipes *recipe.Client, logger logging.Logger) {
	summaries, err := recipes.List()
	if err != nil {
		logger.Warn("monitor: failed to list recipe catalog: %v", err)
		return
	}
	for _, s := range summaries {
		r, err := recipes.Fetch(s.FamilyID)
		if err != nil {
			logger.Warn("monitor: failed to fetch recipe %s: %v", s.FamilyID, err)
			continue
		}
		mon.RegisterFamily(monitor.ReferenceFromRecipe(r))
	}
}

func main() {
	cmdopts := newOptions()

	parser := flags.NewParser(cmdopts, flags.Default)
	parser.Usage = `[OPTIONS]

	monitor scores a worker's tee'd output against the reference statistics
	baked into each family's recipe, computing Jensen-Shannon, Wasserstein-
	like, and KS-like divergence once per minute and exposing family status
	and alerts over HTTP.
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

	logger := logging.New(logging.ParseLevel(opts.Global.LogLevel), "monitor")
	logger.Info("starting monitor, reference path %s", opts.Reference.Path)

	gauges := metrics.NewMonitor()
	mon := monitor.New(monitor.Options{
		Thresholds: monitor.Thresholds{
			JensenShannon:     opts.Thresholds.JSThreshold,
			Wasserstein:       opts.Thresholds.WassersteinThreshold,
			KolmogorovSmirnov: opts.Thresholds.KSThreshold,
		},
		RedMinutes:  opts.Thresholds.RedMinutes,
		WindowSize:  opts.Window.Size,
		MaxSamples:  opts.Window.MaxSamples,
		ComputeTick: opts.Window.ComputeTick,
	}, gauges, logger)

	recipes := recipe.NewClient(opts.Reference.Path, "")

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("shutting down from operating system signal")
		cancel()
	}()

	refreshReferences(mon, recipes, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(opts.Reference.RefreshEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshReferences(mon, recipes, logger)
			}
		}
	}()

	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(done)
	}()

	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", opts.HTTP.MetricsPort), Handler: gauges.Handler()}
	statusSrv := &http.Server{Addr: fmt.Sprintf(":%d", opts.HTTP.Port), Handler: mon.Router()}

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

	<-ctx.Done()
	close(done)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)
	statusSrv.Shutdown(shutdownCtx)

	wg.Wait()
	logger.Info("monitor stopped")
}
