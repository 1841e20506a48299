package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Vasu1712/scenyx-securechat/internal/config"
)

var (
	version = "dev"

	envFiles []string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "securechat",
	Short: "End-to-end encrypted one-to-one chat",
	Long: `securechat is a terminal client for end-to-end encrypted one-to-one
conversations, plus the reference relay it talks to. The relay only ever
stores and forwards ciphertext.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(envFiles...)
		if err != nil {
			return err
		}
		c.ConfigureLogging()
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "env files to load (default .env)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
