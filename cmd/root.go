package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	serverAddrKey = "server.addr"
	listenAddrKey = "listen.addr"
	defaultAddr   = "127.0.0.1:8000"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cfg := viper.New()
	cfg.SetDefault(serverAddrKey, defaultAddr)
	cfg.SetDefault(listenAddrKey, defaultAddr)
	cfg.SetEnvPrefix("TOKENCHAT")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "tokenchat",
		Short:         "tokenchat: LAN chat with a shared room and token-gated private rooms",
		Long:          "tokenchat joins a shared broadcast room over websockets, shows who is online, and negotiates token-gated private rooms through an invite handshake.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().String("server", "", "chat server address (host:port)")
	_ = cfg.BindPFlag(serverAddrKey, rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(cfg),
		newChatCmd(cfg),
		newTokensCmd(cfg),
	)

	return rootCmd
}

func wsBaseURL(cfg *viper.Viper) string {
	return "ws://" + cfg.GetString(serverAddrKey)
}

func httpBaseURL(cfg *viper.Viper) string {
	return "http://" + cfg.GetString(serverAddrKey)
}
