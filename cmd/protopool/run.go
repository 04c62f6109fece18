package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/protopool/internal/runtime"
	"github.com/jward/protopool/scripts"
)

var flagScriptsDir string

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a Risor script against the pool",
	Long:  "Runs a bundled script (summary.risor, extensions.risor) or, with --scripts-dir, a script from disk. The script's last expression is printed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts from disk path instead of the bundled set")
}

func runRun(cmd *cobra.Command, args []string) error {
	pool, s, closeFn, err := openPool(cmd)
	if err != nil {
		return outputError("run", err)
	}
	defer closeFn()

	opts := []runtime.RuntimeOption{runtime.WithLogger(logger)}
	if s != nil {
		opts = append(opts, runtime.WithStore(s))
	}
	// Script source: --scripts-dir overrides embedded FS.
	if flagScriptsDir == "" {
		opts = append(opts, runtime.WithRuntimeFS(scripts.FS))
	}
	rt := runtime.NewRuntime(pool, flagScriptsDir, opts...)

	result, err := rt.RunScript(cmd.Context(), args[0], nil)
	if err != nil {
		return outputError("run", err)
	}
	return outputResult(CLIResult{Command: "run", Results: result})
}
