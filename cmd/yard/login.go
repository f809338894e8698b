package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/prompt"
)

func newLoginCmd() *cobra.Command {
	var (
		flags clientFlags
		token string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log the backend in to Hugging Face",
		Long:  "Sends a Hugging Face access token to the backend so it can pull base models. The token comes from --token, $HF_TOKEN, or a hidden prompt.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, &flags, token)
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVar(&token, "token", "", "access token (default $HF_TOKEN)")
	return cmd
}

func runLogin(cmd *cobra.Command, flags *clientFlags, token string) error {
	e, err := flags.load(cmd)
	if err != nil {
		return err
	}
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}
	if token == "" {
		p := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
		if token, err = p.Secret("Hugging Face token: "); err != nil {
			return fmt.Errorf("read token: %w", err)
		}
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("a token is required")
	}

	msg, err := e.client.Login(cmd.Context(), token)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}
