package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"calcbridge/cmd/server/app/options"
	server "calcbridge/pkg/apiserver"
	"calcbridge/pkg/apiserver/infrastructure/observability"
	"calcbridge/pkg/apiserver/utils"
	"calcbridge/pkg/apiserver/utils/profiling"
	"calcbridge/version"
)

// NewAPIServerCommand creates a *cobra.Command object with default parameters
func NewAPIServerCommand() *cobra.Command {
	s := options.NewServerRunOptions()

	cmd := &cobra.Command{
		Use:   "calcbridge",
		Short: "Arithmetic over pub/sub with request-reply correlation",
		Long: `calcbridge serves arithmetic over HTTP. The gateway publishes each request to a topic
and waits for the correlated outcome; calculators consume the topic and publish results.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := s.ApplyOverrides(cmd.Flags()); err != nil {
				return err
			}
			return s.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(s)
		},
		SilenceUsage: true,
	}

	namedFlagSets := s.Flags()
	fs := cmd.PersistentFlags()
	for _, set := range namedFlagSets.FlagSets {
		fs.AddFlagSet(set)
	}

	cmd.AddCommand(newSubmitCommand(s), newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the calcbridge version",
		// version needs no config
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "calcbridge version %s -- %s\n", version.Version, version.GitCommit)
		},
	}
}

// Run runs the specified APIServer until SIGTERM/SIGINT or a fatal background error.
func Run(s *options.ServerRunOptions) error {
	errChan := make(chan error, 4)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go profiling.StartProfilingServer(ctx, errChan)

	if logDir := s.LogDir(); logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("create log directory %s: %w", logDir, err)
		}
		utils.StartLogCleanup(ctx, logDir, s.LogMaxAge)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- run(ctx, s, errChan)
	}()

	var err error
	select {
	case <-ctx.Done():
		klog.Infof("Received termination signal, exiting gracefully...")
		err = <-runErr
	case err = <-errChan:
		klog.Errorf("Received an error: %v, exiting gracefully...", err)
		cancel()
		if runErrV := <-runErr; runErrV != nil {
			klog.ErrorS(runErrV, "apiserver stopped with error")
		}
	case err = <-runErr:
		if err != nil {
			err = fmt.Errorf("failed to run apiserver: %w", err)
		}
	}
	klog.Infof("See you next time!")
	klog.Flush()
	return err
}

func run(ctx context.Context, s *options.ServerRunOptions, errChan chan error) error {
	cfg := s.GenericServerRunOptions
	klog.InfoS("calcbridge information", "version", version.Version, "commit", version.GitCommit)

	if cfg.EnableTracing {
		klog.InfoS("Distributed tracing enabled", "otlpEndpoint", cfg.OTLPEndpoint)
		shutdown, err := observability.InitTracerProvider(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("failed to init tracer provider: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				klog.ErrorS(err, "Failed to shutdown tracer provider")
			}
		}()
	}

	apiServer := server.New(*cfg)
	return apiServer.Run(ctx, errChan)
}
