package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/sarchlab/rados/monitoring"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// haltTimeout bounds the wait for a running scheduling cycle on shutdown.
const haltTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a kernel over HTTP until interrupted.",
	Long: "`serve` starts an empty kernel and exposes its operations as a " +
		"JSON API. Many clients may call it at the same time. On interrupt " +
		"it waits for the running operation before flushing the recording.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		k, recorder, err := buildKernel(c)
		if err != nil {
			return err
		}

		if recorder != nil {
			atexit.Register(func() { recorder.Close() })
		}

		m := monitoring.NewMonitor().WithPortNumber(c.MonitorPort)
		m.RegisterKernel(k)
		url := m.StartServer()

		if c.OpenBrowser {
			if err := browser.OpenURL(url); err != nil {
				fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		<-ctx.Done()

		halt, cancel := context.WithTimeout(context.Background(), haltTimeout)
		defer cancel()

		if err := k.Halt(halt); err != nil {
			fmt.Fprintf(os.Stderr, "Stopping while an operation runs: %v\n", err)
		}

		atexit.Exit(0)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "Port of the server (default random)")
	serveCmd.Flags().Bool("open", false, "Open the server page in a browser")
}
