package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tokenchat/tokenchat/internal/directory"
)

func newTokensCmd(cfg *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage private-room tokens",
	}

	cmd.AddCommand(
		newTokensListCmd(cfg),
		newTokensCreateCmd(cfg),
		newTokensDeleteCmd(cfg),
	)

	return cmd
}

func newTokensListCmd(cfg *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens := directory.New(httpBaseURL(cfg)).List(cmd.Context())
			if len(tokens) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no tokens")
				return err
			}
			for i, tok := range tokens {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i+1, tok)
			}
			return nil
		},
	}
}

func newTokensCreateCmd(cfg *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Mint a fresh token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok := directory.New(httpBaseURL(cfg)).Create(cmd.Context())
			if tok == "" {
				return fmt.Errorf("token service did not return a token")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
}

func newTokensDeleteCmd(cfg *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token>",
		Short: "Delete a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !directory.New(httpBaseURL(cfg)).Delete(cmd.Context(), args[0]) {
				return fmt.Errorf("delete %s failed", args[0])
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return err
		},
	}
}
