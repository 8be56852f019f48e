package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/printdesk/metrics/export/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMetricsCommand(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve client metrics on /metrics until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", prometheus.Handler(e.client))

			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			e.log.Info("metrics listening", zap.String("addr", addr))
			fmt.Fprintf(cmd.OutOrStdout(), "serving metrics on http://%s/metrics\n", addr)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9464", "listen address")
	return cmd
}
