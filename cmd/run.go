// -- cmd/run.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/agent"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/display"
	"github.com/xkilldash9x/deskpilot/internal/executor"
	"github.com/xkilldash9x/deskpilot/internal/humanoid"
	"github.com/xkilldash9x/deskpilot/internal/llmclient"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

// ErrNotAnswered is returned when a session ends for any reason other than a
// delivered answer, so the process exits nonzero.
var ErrNotAnswered = errors.New("session ended without an answer")

// Seams for tests.
var (
	openDevice = display.Open
	newDecider = llmclient.NewClient
	artifactFs = afero.NewOsFs
)

const metricsShutdownTimeout = 5 * time.Second

// runFlagBindings maps CLI flags onto config keys.
var runFlagBindings = map[string]string{
	"max-turns":      "agent.max_turns",
	"provider":       "model.provider",
	"base-url":       "model.base_url",
	"api-key":        "model.api_key",
	"model":          "model.model",
	"temperature":    "model.temperature",
	"driver":         "display.driver",
	"monitor-index":  "display.monitor_index",
	"move-duration":  "display.move_duration",
	"drag-duration":  "display.drag_duration",
	"fail-safe":      "display.fail_safe",
	"screenshot-dir": "screenshots.directory",
	"metrics-addr":   "metrics.listen_addr",
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var (
		task   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run one agent session against the configured display",
		Long: `Runs a single session: the model sees the screen, issues mouse and keyboard
actions, and ends by calling answer followed by terminate. The task may be
given with --task or as positional arguments.`,
		Example: `  deskpilot run "Open the settings app and enable dark mode"
  deskpilot run --driver browser --task "Find the opening hours on example.com" -o result.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if task == "" {
				task = strings.Join(args, " ")
			}
			if strings.TrimSpace(task) == "" {
				return errors.New("a task is required, pass it with --task or as arguments")
			}

			result, err := runSession(cmd.Context(), cfg, task, observability.GetLogger())
			if err != nil {
				return err
			}
			if err := writeResult(cmd, result, output); err != nil {
				return err
			}
			if result.Reason != schemas.ReasonAnswered {
				return fmt.Errorf("%w: %s", ErrNotAnswered, result.Reason)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&task, "task", "t", "", "Natural language task for the agent")
	f.StringVarP(&output, "output", "o", "", "Write the session result JSON to this file instead of stdout")
	f.Int("max-turns", 0, "Maximum number of model turns")
	f.String("provider", "", "Model provider (openai, gemini)")
	f.String("base-url", "", "Base URL of the OpenAI compatible endpoint")
	f.String("api-key", "", "API key for the model endpoint")
	f.String("model", "", "Model name")
	f.Float64("temperature", 0, "Sampling temperature")
	f.String("driver", "", "Display driver (host, browser, fake)")
	f.Int("monitor-index", 0, "Monitor to capture, 0 for all displays, n for display n")
	f.Duration("move-duration", 0, "Default pointer travel time")
	f.Duration("drag-duration", 0, "Default drag travel time")
	f.Bool("fail-safe", false, "Abort when the pointer is parked in a display corner")
	f.String("screenshot-dir", "", "Directory for screenshots and the transcript, empty disables persistence")
	f.String("metrics-addr", "", "Serve prometheus metrics on this address during the session")

	for flag, key := range runFlagBindings {
		if err := v.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %q: %v", flag, err))
		}
	}
	return cmd
}

// runSession assembles the device stack and runs one agent session. When a
// metrics address is configured the endpoint lives exactly as long as the
// session.
func runSession(ctx context.Context, cfg *config.Config, task string, logger *zap.Logger) (*schemas.SessionResult, error) {
	device, err := openDevice(ctx, cfg.Display, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open display: %w", err)
	}
	defer func() {
		if err := device.Close(); err != nil {
			logger.Warn("Failed to close display.", zap.Error(err))
		}
	}()

	capturer := display.NewCapturer(device)
	h := humanoid.New(cfg.Humanoid, humanoid.NewDeviceExecutor(device), logger)
	exec := executor.New(device, h, capturer, cfg.Display, logger)

	decider, err := newDecider(ctx, cfg.Model, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []agent.Option{agent.WithMetrics(observability.NewSessionMetrics(reg))}

	if dir := cfg.Screenshots.Directory; dir != "" {
		st, err := store.New(artifactFs(), dir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare screenshot directory: %w", err)
		}
		opts = append(opts, agent.WithStore(st))
	}

	a, err := agent.New(cfg.Agent, decider, exec, capturer, logger, opts...)
	if err != nil {
		return nil, err
	}

	var server *http.Server
	if addr := cfg.Metrics.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	g, gctx := errgroup.WithContext(ctx)
	var result *schemas.SessionResult

	g.Go(func() error {
		if server != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Metrics server shutdown failed.", zap.Error(err))
				}
			}()
		}
		var err error
		result, err = a.Run(gctx, task)
		return err
	})

	if server != nil {
		g.Go(func() error {
			logger.Info("Serving metrics.", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if result == nil {
			return nil, err
		}
		logger.Warn("Session finished with a background failure.", zap.Error(err))
	}
	return result, nil
}

func writeResult(cmd *cobra.Command, result *schemas.SessionResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session result: %w", err)
	}
	if path == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write session result: %w", err)
	}
	cmd.Printf("Session result written to %s\n", path)
	return nil
}
