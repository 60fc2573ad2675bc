package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ValerySidorin/ackd/ack"
	_ "github.com/ValerySidorin/ackd/connector/imports"
	"github.com/ValerySidorin/ackd/internal/config"
	"github.com/ValerySidorin/ackd/internal/connector"
	obs "github.com/ValerySidorin/ackd/internal/observability"
	"github.com/bytedance/sonic"
	_ "go.uber.org/automaxprocs"
	"gopkg.in/yaml.v3"
)

var (
	Commit string
)

func main() {
	if len(os.Args) > 2 {
		log.Fatal("invalid args")
	}
	confPath := ""
	if len(os.Args) == 2 {
		confPath = os.Args[1]
	}
	var conf config.Config
	if err := loadConfig(confPath, &conf); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	logger := newLogger(conf.Log)

	logger.Info("starting ackd")
	logger.Info(fmt.Sprintf("commit: %s", Commit))

	if err := run(ctx, conf, logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, conf config.Config, logger *slog.Logger) error {
	shutdownObs, err := obs.Init(ctx, conf.Observability, logger)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		if err := shutdownObs(context.Background()); err != nil {
			logger.Error("shutdown observability", "err", err)
		}
	}()

	cman := connector.NewManager(conf.Connectors, logger)
	defer cman.Close()

	acker, err := ack.New(conf.Ack, cman, ack.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("new acknowledger: %w", err)
	}

	runErr := cman.Run(ctx, acker, handler(conf.Log.DumpMessages, logger))
	if runErr != nil {
		runErr = fmt.Errorf("run connectors: %w", runErr)
	}

	logger.Info("shutting down acknowledger", "pending", countPending(acker))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Ack.ShutdownDrainTimeout+5*time.Second)
	defer shutdownCancel()
	if err := acker.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown acknowledger", "err", err)
	}

	stats := acker.Stats()
	logger.Info("acknowledger stopped",
		"completed", stats.Completed,
		"failed", stats.Failed,
		"incomplete", stats.Incomplete,
		"retries", stats.Retries,
	)

	return runErr
}

type dumpedMessage struct {
	Subscription string            `json:"subscription"`
	ID           string            `json:"id"`
	AckID        string            `json:"ack_id"`
	Data         string            `json:"data"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	PublishTime  time.Time         `json:"publish_time"`
}

func handler(dump bool, l *slog.Logger) func(msg *ack.Message) {
	return func(msg *ack.Message) {
		if dump {
			m := msg.Message()
			data, err := sonic.Marshal(dumpedMessage{
				Subscription: msg.Subscription(),
				ID:           m.ID,
				AckID:        msg.AckID(),
				Data:         string(m.Data),
				Attributes:   m.Attributes,
				PublishTime:  m.PublishTime,
			})
			if err != nil {
				l.Error("marshal message", "err", err)
			} else {
				l.Info("received message", "msg", string(data))
			}
		}
		msg.Ack()
	}
}

func countPending(a *ack.Acknowledger) int {
	var n int
	for range a.Pending() {
		n++
	}
	return n
}

func newLogger(conf config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(conf.Level)}
	switch conf.Type {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
}

func parseLogLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadConfig(filePath string, cfg *config.Config) error {
	paths := []string{}

	if filePath == "" {
		paths = append(paths, "./config.yaml", "conf/config.yaml", "config/config.yaml")
	} else {
		paths = append(paths, filePath)
	}

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		defer f.Close()

		log.Printf("found config file in: %s\n", p)
		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}

		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to find config in: %v", paths)
}
