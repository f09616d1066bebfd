package signal

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
)

// NotifyContext returns a context canceled on the first of sig. The second signal terminates the
// process right away, so a stuck shutdown can still be interrupted.
func NotifyContext(ctx context.Context, log *slog.Logger, sig ...os.Signal) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sig...)

	go func() {
		select {
		case s := <-sigCh:
			log.Info("shutting down", slog.String("signal", s.String()))
			cancel()
		case <-ctx.Done():
		}
		<-sigCh
		log.Warn("forced exit")
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
