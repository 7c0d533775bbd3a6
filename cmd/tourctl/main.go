// Command tourctl is the operator tool for the campus tour: it checks and
// repairs tour documents, talks to the persistence service and runs the quest
// in a terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/playperu/campustour/internal/config"
	"github.com/playperu/campustour/internal/gateway"
	"github.com/playperu/campustour/internal/tour"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	cfg    *config.Config
	logger *slog.Logger
	server string
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c := &cli{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel})),
	}

	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tourctl",
		Short:         "Manage the panorama campus tour",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.server, "server", c.cfg.ServerURL, "base URL of the tour service")

	root.AddCommand(
		c.validateCmd(),
		c.danglingCmd(),
		c.pruneCmd(),
		c.lowresCmd(),
		c.pullCmd(),
		c.pushCmd(),
		c.imagesCmd(),
		c.uploadCmd(),
		c.checkImagesCmd(),
		c.questCmd(),
	)
	return root
}

func (c *cli) gateway() *gateway.Client {
	return gateway.New(c.server, nil, c.logger)
}

func readTourFile(path string) (tour.Data, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tour.Data{}, err
	}
	var d tour.Data
	if err := json.Unmarshal(data, &d); err != nil {
		return tour.Data{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	d.Normalize()
	return d, nil
}

// writeTour writes the document indented by two spaces, the layout editors
// have always produced.
func writeTour(w io.Writer, d tour.Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func writeTourFile(path string, d tour.Data) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tour-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if err := writeTour(f, d); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

