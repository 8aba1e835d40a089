package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpAdapter "github.com/aretw0/triage/pkg/adapters/http"
	"github.com/aretw0/triage/pkg/consumer"
	"github.com/aretw0/triage/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// ServeOptions configures Serve.
type ServeOptions struct {
	Addr string
	// NoConsumer disables the queue consumer.
	NoConsumer bool
	// NoHTTP disables the HTTP server.
	NoHTTP bool
}

// Serve runs the HTTP server and the queue consumer side by side until ctx is done
// or either of them fails.
func Serve(ctx context.Context, app *App, opts ServeOptions) error {
	if opts.NoConsumer && opts.NoHTTP {
		return errors.New("nothing to serve: both the consumer and the HTTP server are disabled")
	}

	cfg := app.Config
	broker, err := app.Broker()
	if err != nil {
		return err
	}
	streams := httpAdapter.NewStreamManager(app.Logger)

	g, ctx := errgroup.WithContext(ctx)

	if !opts.NoConsumer {
		c := app.Consumer(broker)
		handler := consumer.HandlerFunc(func(ctx context.Context, in domain.Inbound) (*domain.Outcome, error) {
			out, err := app.Engine.Handle(ctx, in)
			if err == nil {
				streams.PublishOutcome(out)
			}
			return out, err
		})
		g.Go(func() error {
			return c.Run(ctx, cfg.Broker.Queue, handler)
		})
	}

	if !opts.NoHTTP {
		handlerOpts := []httpAdapter.Option{
			httpAdapter.WithSessions(app.Engine),
			httpAdapter.WithPublisher(broker, cfg.Broker.Queue),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithLogger(app.Logger),
		}
		if cfg.Metrics.Enabled {
			handlerOpts = append(handlerOpts, httpAdapter.WithMetrics(app.Metrics.Handler()))
		}

		addr := opts.Addr
		if addr == "" {
			addr = cfg.Server.Addr
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           httpAdapter.NewHandler(app.Engine, handlerOpts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			app.Logger.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("graceful shutdown did not complete", "err", err)
				return srv.Close()
			}
			return nil
		})
	}

	return g.Wait()
}
