package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/rados/config"
	"github.com/sarchlab/rados/kernel"
	"github.com/sarchlab/rados/report"
	"github.com/spf13/cobra"
)

// demoQuantum keeps the demo short unless a quantum is configured.
const demoQuantum = 100 * time.Millisecond

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through a contested allocation and a deadlock.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if _, set := os.LookupEnv(config.EnvQuantum); !set &&
			!cmd.Flags().Changed("quantum") {
			c.Quantum = demoQuantum
		}

		k, recorder, err := buildKernel(c)
		if err != nil {
			return err
		}

		if recorder != nil {
			defer recorder.Close()
		}

		return runDemo(cmd.OutOrStdout(), k)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(w io.Writer, k *kernel.Kernel) error {
	fmt.Fprintln(w, "== A process waits for a resource ==")

	p1 := k.CreateProcess("P1")
	fmt.Fprintf(w, "create P1 -> pid %d\n", p1)
	fmt.Fprintf(w, "allocate(P1, 25, R100) -> %s\n",
		describe(k.AllocateMemory(p1, 25, 100)))

	p2 := k.CreateProcess("P2")
	fmt.Fprintf(w, "create P2 -> pid %d\n", p2)
	fmt.Fprintf(w, "allocate(P2, 5, R100) -> %s\n",
		describe(k.AllocateMemory(p2, 5, 100)))
	fmt.Fprintf(w, "detectDeadlock(P2, R100) -> %t\n",
		k.DetectDeadlock(p2, 100))

	fmt.Fprintln(w, "\n== Two processes wait for each other ==")

	p3 := k.CreateProcess("P3")
	p4 := k.CreateProcess("P4")
	fmt.Fprintf(w, "allocate(P3, 10, R1) -> %s\n",
		describe(k.AllocateMemory(p3, 10, 1)))
	fmt.Fprintf(w, "allocate(P4, 10, R2) -> %s\n",
		describe(k.AllocateMemory(p4, 10, 2)))

	if err := k.RequestResource(p3, 2, p4); err != nil {
		return err
	}

	fmt.Fprintln(w, "request(P3, R2, P4)")
	fmt.Fprintf(w, "detectDeadlock(P4, R1) -> %t\n", k.DetectDeadlock(p4, 1))
	fmt.Fprintf(w, "allocate(P4, 10, R1) -> %s\n",
		describe(k.AllocateMemory(p4, 10, 1)))

	if err := printState(w, k); err != nil {
		return err
	}

	fmt.Fprintln(w, "\n== P1 and P3 free their memory ==")
	fmt.Fprintf(w, "free(P1) -> %v\n", k.FreeMemory(p1))
	fmt.Fprintf(w, "free(P3) -> %v\n", k.FreeMemory(p3))
	fmt.Fprintf(w, "allocate(P2, 5, R100) -> %s\n",
		describe(k.AllocateMemory(p2, 5, 100)))
	fmt.Fprintf(w, "allocate(P4, 10, R1) -> %s\n",
		describe(k.AllocateMemory(p4, 10, 1)))

	fmt.Fprintln(w, "\n== One scheduling cycle ==")

	if err := report.Runs(w, k.RunSchedulerCycle()); err != nil {
		return err
	}

	return printState(w, k)
}

func describe(r kernel.AllocResult) string {
	switch r.Outcome {
	case kernel.Granted:
		return fmt.Sprintf("granted pages %v", r.Pages)
	case kernel.Busy:
		return fmt.Sprintf("busy, held by pid %d", r.Holder)
	case kernel.DeniedDeadlockRisk:
		return fmt.Sprintf("%s, held by pid %d, cycle %v",
			r.Outcome, r.Holder, r.Cycle)
	default:
		return r.Outcome.String()
	}
}

func printState(w io.Writer, k *kernel.Kernel) error {
	fmt.Fprintln(w)

	return report.State(w, k.State())
}
