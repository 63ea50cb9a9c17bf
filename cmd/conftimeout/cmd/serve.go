package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nfrund/conftimeout/internal/app"
	"github.com/nfrund/conftimeout/internal/config"
	"github.com/spf13/cobra"
)

var (
	serveConfigPath string
	serveAddr       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the timeout service",
	Long: `Run the timeout service until SIGINT or SIGTERM.

Configuration is read from the YAML file given by --config, then from a .env
file in the working directory, then from the environment. --addr overrides
the HTTP listen address last.

Examples:
  conftimeout serve
  conftimeout serve --config conftimeout.yaml
  conftimeout serve --addr 127.0.0.1:9090`,
	Args: cobra.NoArgs,
	RunE: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --addr: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.New(cfg).Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to a YAML config file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address, overrides the config")
}
