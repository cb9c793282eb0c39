package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	version   = "1.0.0"
	commit    = ""
	buildDate = ""
)

// Create the root command. The root itself performs generation so the
// common invocation stays a single command with flags.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csub [flags] [sourceFile]",
		Short: "csub: split line-oriented input into chunks and generate batch job files",
		Long: "csub partitions a line stream into fixed-size chunk files, renders one\n" +
			"scheduler job file per chunk from a template, and prints the submit\n" +
			"command for each job. It never submits anything itself.",
		Args:          cobra.MaximumNArgs(1),
		RunE:          runGenerate,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("log", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")

	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		levelStr, _ := c.Flags().GetString("log")
		switch levelStr {
		case "trace":
			zerolog.SetGlobalLevel(zerolog.TraceLevel)
		case "debug":
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		case "info":
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		case "warn":
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		case "error":
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		case "fatal":
			zerolog.SetGlobalLevel(zerolog.FatalLevel)
		default:
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	}

	cmd.Flags().StringP("project", "P", "", "project/account the jobs bill against")
	cmd.Flags().StringP("queue", "q", "", "scheduler queue")
	cmd.Flags().StringP("cpus", "n", "", "processors per node")
	cmd.Flags().StringP("walltime", "w", "", "walltime request (scheduler format)")
	cmd.Flags().StringP("mem", "m", "", "memory request (scheduler format)")
	cmd.Flags().StringP("config", "c", "", "config file (default: per-user config)")
	cmd.Flags().StringP("template", "t", "", "job template file (default: per-user template)")
	cmd.Flags().StringP("workdir", "d", "", "working directory for chunk and job files (default: config file workdir, else current directory)")
	cmd.Flags().StringP("overload", "o", "", "work units packed per processor (default 1)")
	cmd.Flags().StringP("script", "s", "", "script file whose body runs inside each job")
	cmd.Flags().StringP("name", "N", "", "job name, scopes the chunk and job directories")
	cmd.Flags().String("submit", "", "submit command token (default qsub)")
	cmd.Flags().Bool("json", false, "print generated job records as JSON instead of submit lines")
	_ = cmd.MarkFlagRequired("name")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newPushCmd())
	return cmd
}

// Create the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("csub %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

// Setup the logger
func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Main entry point
func main() {
	setupLogger()
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
