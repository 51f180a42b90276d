// facetrack: face and hand tracking service
// Accepts camera frames over WebSocket, tracks faces and gestures, and streams
// the tracking buffer to subscribers while driving a companion controller
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/teslashibe/go-facetrack/internal/config"
	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/companion"
	"github.com/teslashibe/go-facetrack/pkg/debug"
	"github.com/teslashibe/go-facetrack/pkg/pipeline"
	"github.com/teslashibe/go-facetrack/pkg/vision"
	"github.com/teslashibe/go-facetrack/pkg/vision/detection"
	"github.com/teslashibe/go-facetrack/pkg/web"
)

var (
	version = "1.0.0"

	port          = flag.Int("port", config.ListenPort(), "HTTP server port")
	configPath    = flag.String("config", config.ConfigPath(), "JSON config overlay")
	logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	debugFlag     = flag.Bool("debug", false, "Enable debug logging")
	debugTracking = flag.Bool("debug-tracking", false, "Log every tracking decision (very verbose)")
	noCompanion   = flag.Bool("no-companion", false, "Do not connect to the companion controller")
)

func main() {
	flag.Parse()

	debug.Enabled = *debugFlag
	debug.Tracking = *debugTracking
	level := *logLevel
	if debug.Enabled || debug.Tracking {
		level = "debug"
	}
	log.Init(level)

	if err := run(); err != nil {
		log.Error("facetrack stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := pipeline.DefaultConfig()
	cfg.Companion.Host = config.CompanionHost(cfg.Companion.Host)
	switch err := config.LoadOverlay(*configPath, &cfg); {
	case errors.Is(err, config.ErrNoOverlay):
		log.Info("no config overlay, using defaults", "path", *configPath)
	case err != nil:
		return err
	default:
		log.Info("config overlay loaded", "path", *configPath)
	}

	log.Info("starting facetrack", "version", version, "port", *port,
		"camera", []int{cfg.Width, cfg.Height}, "maxFaces", cfg.MaxSubjects)

	coord := pipeline.New(cfg)
	defer coord.Close()
	log.Info("pipeline created", "session", coord.SessionID())

	// Companion side channel
	var comp *companion.Client
	var webComp web.Companion
	if !*noCompanion {
		ccfg := companion.DefaultConfig()
		ccfg.Host, ccfg.Port = cfg.Companion.Host, cfg.Companion.Port
		comp = companion.New(ccfg)
		webComp = comp
		if err := coord.SetTriggerListener(comp); err != nil {
			return err
		}
	}

	decode := func(data []byte) (vision.Frame, error) {
		return detection.Decode(data)
	}
	server := web.NewServer(*port, coord, webComp, decode)
	if debug.Enabled {
		server.App().Use(logger.New())
	}

	coord.OnFrame(server.PublishFrame)
	coord.OnError(server.PublishError)
	coord.OnReady(server.PublishReady)
	if comp != nil {
		comp.OnStatus = server.PublishCompanionStatus
		comp.OnVariable = server.PublishVariable
		go comp.Run(ctx)
	}

	// Load models in the background so subscribers see the error event on failure
	go func() {
		if err := coord.Init(ctx, pipeline.LoaderFunc(detection.Load)); err != nil {
			log.Error("detectors not loaded, frames will be dropped", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil {
		return err
	}
	log.Info("shutting down", "stats", coord.Stats())
	return nil
}
