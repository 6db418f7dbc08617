package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot URL",
	Short: "Print the state of a kernel served by `rados serve`.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchSnapshot(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

var snapshotClient = &http.Client{Timeout: 10 * time.Second}

func fetchSnapshot(ctx context.Context, w io.Writer, url string) error {
	req, err := http.NewRequestWithContext(ctx,
		http.MethodGet, strings.TrimSuffix(url, "/")+"/", nil)
	if err != nil {
		return err
	}

	rsp, err := snapshotClient.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot from %s: %s", url, rsp.Status)
	}

	_, err = io.Copy(w, rsp.Body)

	return err
}
