package cmd

import (
	"log"
	"os"

	"github.com/sarchlab/rados/config"
	"github.com/sarchlab/rados/datarecording"
	"github.com/sarchlab/rados/kernel"
	"github.com/sarchlab/rados/scheduler"
	"github.com/sarchlab/rados/tracing"
	"github.com/spf13/cobra"
)

// flagVariables maps the flags that override a setting to its variable.
var flagVariables = map[string]string{
	"memory":      config.EnvMemorySize,
	"page-size":   config.EnvPageSize,
	"quantum":     config.EnvQuantum,
	"log":         config.EnvLogEvents,
	"record":      config.EnvRecord,
	"record-path": config.EnvRecordPath,
	"port":        config.EnvMonitorPort,
	"open":        config.EnvOpenBrowser,
}

// loadConfig reads the configuration with the flags the user set taking the
// place of the variables they name. It validates the result once.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	files, err := flags.GetStringSlice("env")
	if err != nil {
		return config.Config{}, err
	}

	overrides := config.Overrides{}
	for name, variable := range flagVariables {
		f := flags.Lookup(name)
		if f != nil && f.Changed {
			overrides[variable] = f.Value.String()
		}
	}

	if _, ok := overrides[config.EnvRecordPath]; ok {
		if _, ok := overrides[config.EnvRecord]; !ok {
			overrides[config.EnvRecord] = "true"
		}
	}

	return overrides.Load(files...)
}

// buildKernel creates a kernel with the hooks the configuration asks for.
// The returned recorder is nil unless recording is on.
func buildKernel(
	c config.Config,
) (*kernel.Kernel, datarecording.DataRecorder, error) {
	k, err := kernel.MakeBuilder().
		WithMemorySize(c.MemorySize).
		WithPageSize(c.PageSize).
		WithQuantum(c.Quantum).
		Build()
	if err != nil {
		return nil, nil, err
	}

	if c.LogEvents {
		k.AcceptHook(tracing.NewLogHook(log.New(os.Stderr, "", log.LstdFlags)))
	}

	var recorder datarecording.DataRecorder
	if c.Record {
		recorder = datarecording.New(c.RecordPath)
		k.AcceptHook(tracing.NewDBTracer(scheduler.WallClock{}, recorder))
	}

	return k, recorder, nil
}
