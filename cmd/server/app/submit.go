package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"calcbridge/cmd/server/app/options"
	server "calcbridge/pkg/apiserver"
	"calcbridge/pkg/apiserver/config"
	"calcbridge/pkg/apiserver/domain/service"
	"calcbridge/pkg/apiserver/event"
	"calcbridge/pkg/apiserver/utils/cache"
)

func newSubmitCommand(s *options.ServerRunOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <operation> <a> <b>",
		Short: "Send one correlated request over the configured broker and print the result",
		Example: `  calcbridge submit divide 10 3 --msg-type=redis
  calcbridge submit sum 1.5 2`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("operand a: %w", err)
			}
			b, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("operand b: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), s.GenericServerRunOptions.Correlator.Timeout+5*time.Second)
			defer cancel()
			return submit(ctx, *s.GenericServerRunOptions, cmd.OutOrStdout(), args[0], a, b)
		},
	}
}

// submit runs a correlator for a single call. With the in-process broker nothing else could
// answer, so a calculator runs alongside it.
func submit(ctx context.Context, cfg config.Config, out io.Writer, op string, a, b decimal.Decimal) error {
	broker, err := server.NewBroker(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := broker.Close(context.Background()); err != nil {
			klog.V(4).Infof("close broker: %v", err)
		}
	}()

	c, err := server.NewCorrelator(cfg, broker)
	if err != nil {
		return err
	}
	workers := []event.Worker{c}
	if !cfg.HasExternalQueue() {
		w, err := server.NewCalculatorWorker(cfg, broker, service.NewCalculatorService(), cache.New(cache.CacheTypeNone, nil, 0, ""))
		if err != nil {
			return err
		}
		workers = append(workers, w)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	errChan := make(chan error, len(workers))
	var g errgroup.Group
	for _, w := range workers {
		w := w
		g.Go(func() error {
			w.Start(runCtx, errChan)
			return nil
		})
	}
	defer func() {
		stop()
		_ = g.Wait()
	}()

	select {
	case <-c.Ready():
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	id, value, err := c.Execute(ctx, op, a, b)
	if err != nil {
		fmt.Fprintf(out, "%s %s\n", color.RedString("error:"), err.Error())
		return err
	}
	fmt.Fprintf(out, "%s %s\n", color.GreenString(value.String()), color.New(color.Faint).Sprintf("(%s)", id))
	return nil
}
