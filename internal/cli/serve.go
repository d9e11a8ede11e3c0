package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/gocoro/internal/jsexpr"
	"github.com/me/gocoro/internal/plan"
	"github.com/me/gocoro/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		addr         string
		exitOnFinish bool
		output       string
	)

	cmd := &cobra.Command{
		Use:   "serve <plan-file>",
		Short: "Run a plan and serve the control API until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			p, err := loadPlan(args[0])
			if err != nil {
				return err
			}
			env, err := jsexpr.New()
			if err != nil {
				return err
			}
			exec, err := plan.New(p, env, cfg.Precision, logger, cfg.SchedulerOptions(logger)...)
			if err != nil {
				return err
			}

			srv := server.New(exec.Controller(), logger, server.WithEnv(env), server.WithRunID(exec.ID()))
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			httpServer := &http.Server{Handler: srv.Handler()}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			if err := exec.Start(ctx); err != nil {
				ln.Close()
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				err := exec.Wait(gctx)
				switch {
				case err == nil:
				case errors.Is(err, plan.ErrTimeout):
					logger.Warn("plan timed out", "run_id", exec.ID())
				case errors.Is(err, context.Canceled):
					return nil
				default:
					return err
				}
				if exitOnFinish {
					cancel()
				}
				return nil
			})
			g.Go(func() error {
				logger.Info("server starting", "addr", ln.Addr().String(), "run_id", exec.ID())
				if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			exec.Stop()
			if werr := writeReport(cmd.OutOrStdout(), exec.Report(), output); werr != nil && err == nil {
				err = werr
			}
			logger.Info("server stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address (overrides config addr)")
	cmd.Flags().BoolVar(&exitOnFinish, "exit-on-finish", false, "Stop serving once every task has finished")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Report format (yaml, json)")
	return cmd
}
