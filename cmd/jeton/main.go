package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "jeton",
	Short: "Jeton: points-metered AI function gateway",
	Long:  "Jeton sells AI functions (chat, text and code generation, document summary, movie-clip planning) for points. Every call is priced from the function catalogue, charged atomically against the caller's balance and recorded in an audit log.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/jeton.yaml when present)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
