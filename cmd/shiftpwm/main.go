package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"periph.io/x/host/v3"

	"github.com/coreman2200/funtimes-shiftpwm/internal/animate"
	"github.com/coreman2200/funtimes-shiftpwm/internal/config"
	"github.com/coreman2200/funtimes-shiftpwm/internal/led"
	"github.com/coreman2200/funtimes-shiftpwm/internal/pwm"
	"github.com/coreman2200/funtimes-shiftpwm/internal/stream"
	"github.com/coreman2200/funtimes-shiftpwm/internal/ws"
)

// producer is anything that writes levels into the store for the life of ctx.
type producer interface {
	Run(ctx context.Context, u animate.Updater) error
}

func main() {
	// ---- Flags (config.yaml overrides where set) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		driver     = flag.String("driver", "", "driver: spi | gpio | console | sim")
		quantumUs  = flag.Int("quantum-us", 0, "wall time of one step unit in µs (cycle = 255 units)")
		animation  = flag.String("animation", "", "producer: static | chase")
		addr       = flag.String("addr", "", "HTTP listen address, \"-\" disables")
		logLevel   = flag.String("log-level", "", "trace | debug | info | warn | error")
		saveConfig = flag.Bool("save-config", false, "write the effective config back to -config and exit")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Config ----
	cfg := config.Defaults()
	if c, err := config.Load(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with defaults and flags")
	} else {
		cfg = *c
	}
	if *driver != "" {
		cfg.Driver = *driver
	}
	if *quantumUs > 0 {
		cfg.QuantumUs = *quantumUs
	}
	if *animation != "" {
		cfg.Animation.Kind = *animation
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level; using info")
	}

	if *saveConfig {
		if err := config.Save(*configPath, &cfg); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("save config")
		}
		log.Info().Str("path", *configPath).Msg("config saved")
		return
	}

	// ---- Hardware ----
	if _, err := host.Init(); err != nil {
		log.Warn().Err(err).Msg("periph host init failed; hardware drivers unavailable")
	}
	drv, name := led.Open(cfg)
	defer drv.Close()

	var mirror func(pwm.Levels)
	if cfg.Strip.Enabled {
		strip, err := led.NewStrip(cfg.Strip.Dev, cfg.Strip.SpeedHz)
		if err != nil {
			log.Warn().Err(err).Str("dev", cfg.Strip.Dev).Msg("mirror strip unavailable")
		} else {
			defer strip.Close()
			mirror = func(l pwm.Levels) {
				if err := strip.Show(l); err != nil {
					log.Debug().Err(err).Msg("mirror strip write")
				}
			}
		}
	}

	// ---- Core ----
	store := pwm.NewStore()
	streamer := stream.New(store, drv, stream.SystemClock{}, time.Duration(cfg.QuantumUs)*time.Microsecond)

	var prod producer
	switch cfg.Animation.Kind {
	case "chase":
		c := animate.NewChase(cfg.Animation.Path, cfg.Animation.Step,
			time.Duration(cfg.Animation.TickMs)*time.Millisecond, cfg.Animation.Ease)
		c.OnUpdate = mirror
		prod = c
	default:
		prod = &animate.Static{Levels: animate.LevelsFrom(cfg.Levels), OnUpdate: mirror}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return streamer.Run(ctx) })
	g.Go(func() error { return prod.Run(ctx, store) })

	if cfg.Addr != "-" {
		ctl := ws.NewServer(store, streamer.Stats, name)
		ctl.OnUpdate = mirror
		srv := &http.Server{
			Addr:         cfg.Addr,
			Handler:      ctl.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error { return ctl.Run(ctx, 100*time.Millisecond) })
		g.Go(func() error {
			log.Info().Str("addr", cfg.Addr).Str("driver", name).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	// ---- Graceful shutdown ----
	err := g.Wait()
	st := streamer.Stats()
	log.Info().Uint64("cycles", st.Cycles).Uint64("sends", st.Sends).Uint64("send_errors", st.SendErrors).Msg("shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("stopped with error")
		drv.Close()
		os.Exit(1)
	}
}
