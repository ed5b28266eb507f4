package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tokenchat/tokenchat/internal/server"
)

func newServeCmd(cfg *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the room server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := cfg.GetString(listenAddrKey)
			srv := server.New()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(addr)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "room server listening on %s\n", addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				return srv.Stop()
			}
		},
	}

	cmd.Flags().String("listen", "", "listen address (host:port)")
	_ = cfg.BindPFlag(listenAddrKey, cmd.Flags().Lookup("listen"))

	return cmd
}
