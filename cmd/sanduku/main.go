// Sanduku — MCP gateway serving sandboxed execution and web tools.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sanduku",
	Short: "Sanduku — an MCP server for sandboxed code execution and web retrieval.",
	Long: `Sanduku serves Model Context Protocol tools for running untrusted Python
and shell commands inside resource-limited sandboxes (local processes, a
remote persistent shell, or Docker containers), plus web fetch and link
extraction with SSRF protection.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
