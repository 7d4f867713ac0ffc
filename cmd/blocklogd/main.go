package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/edirooss/blocklog/internal/config"
	"github.com/edirooss/blocklog/internal/http/handler"
	mw "github.com/edirooss/blocklog/internal/http/middleware"
	"github.com/edirooss/blocklog/internal/logsink"
	"github.com/edirooss/blocklog/internal/service"
	"github.com/edirooss/blocklog/internal/source"
	"github.com/edirooss/blocklog/internal/storage/filestore"
	"github.com/edirooss/blocklog/internal/storage/memstore"
	"github.com/edirooss/blocklog/internal/storage/redisstore"
	"github.com/edirooss/blocklog/internal/storage/tailstore"
)

func main() {
	configPath := flag.String("config", "blocklogd.yaml", "path to the YAML config file")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.BoolVar(showVersion, "version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("blocklogd %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
		os.Exit(0)
	}

	// Read env
	isDev := os.Getenv("ENV") == "dev"

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Anything after "--" overrides the configured child command.
	if args := flag.Args(); len(args) > 0 {
		cfg.Source.Command = args
	}

	log := buildLogger()
	defer log.Sync()
	log = log.Named("main").With(zap.String("run_id", uuid.NewString()))
	log.Info("starting",
		zap.String("version", config.Version),
		zap.String("backend", cfg.Backend),
		zap.String("name", cfg.Name),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := buildBackend(log, cfg)
	if err != nil {
		log.Fatal("backend creation failed", zap.Error(err))
	}
	defer closeBackend()
	tail := tailstore.Wrap(backend, cfg.TailSize)

	sink, err := logsink.New(log, tail, cfg.SinkOptions())
	if err != nil {
		log.Fatal("sink creation failed", zap.Error(err))
	}
	if err := sink.Open(cfg.Name); err != nil {
		log.Fatal("sink open failed", zap.Error(err))
	}

	input := make(chan []byte, 64)
	loop := service.NewSinkLoop(log, sink, cfg.FlushInterval, input)
	httpsrv := buildHTTPServer(log, cfg, isDev, loop, tail)

	g, gctx := errgroup.WithContext(ctx)

	// On shutdown the loop writes whatever the source already queued, then
	// closes the sink.
	g.Go(func() error { return loop.Run(gctx) })

	g.Go(func() error {
		var w io.Writer = source.NewChanWriter(gctx, input)
		if cfg.UptimePrefix {
			w = logsink.NewPrefixer(w)
		}
		if len(cfg.Source.Command) > 0 {
			cmd, err := source.NewCommand(log, cfg.Source.Command, cfg.Source.RestartCooldown)
			if err != nil {
				return err
			}
			return cmd.Run(gctx, w)
		}
		return source.NewReader(log, os.Stdin).Run(gctx, w)
	})

	g.Go(func() error {
		log.Info("running HTTP server", zap.String("addr", httpsrv.Addr))
		if err := httpsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpsrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("stopped")
}

// buildBackend returns the configured storage backend and a cleanup func for
// any client it created.
func buildBackend(log *zap.Logger, cfg *config.Config) (logsink.Backend, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendFile:
		s, err := filestore.New(log, cfg.File.Dir)
		return s, noop, err
	case config.BackendRedis:
		client := redisstore.NewClient(log, redisstore.ClientOptions{
			Addr:    cfg.Redis.Addr,
			DB:      cfg.Redis.DB,
			Timeout: cfg.Redis.Timeout,
		})
		h, err := client.Probe(context.Background())
		switch {
		case err != nil:
			log.Warn("redis unreachable, starting degraded; the first write will halt the sink", zap.Error(err))
		case cfg.Redis.WaitAOF && !h.AOFEnabled:
			log.Warn("wait_aof is set but appendonly is disabled on the server; flushes will halt the sink")
		default:
			log.Info("redis connection established", zap.Duration("ping_rtt", h.RTT), zap.Bool("aof", h.AOFEnabled))
		}
		s, err := redisstore.New(log, client, redisstore.Options{
			KeyPrefix: cfg.Redis.KeyPrefix,
			MaxBytes:  cfg.Redis.MaxBytes,
			WaitAOF:   cfg.Redis.WaitAOF,
			OpTimeout: cfg.Redis.Timeout,
		})
		return s, func() { client.Close() }, err
	case config.BackendMemory:
		return memstore.New(0), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func buildHTTPServer(log *zap.Logger, cfg *config.Config, isDev bool, loop *service.SinkLoop, tail handler.TailReader) *http.Server {
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer()
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(mw.RequestID())
	if isDev {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:3000"},
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{mw.RequestIDHeader, "Content-Type"},
			ExposeHeaders: []string{mw.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	} else {
		r.Use(secure.New(secure.Config{
			FrameDeny:          true,
			ContentTypeNosniff: true,
			SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		}))
	}
	r.Use(mw.AccessLog(log.Named("access")))
	r.Use(mw.LimitConcurrentRequests(16))
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	handler.NewSinkHandler(log, loop, tail).Register(r)

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
