package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/csub-dev/csub/internal/config"
	"github.com/csub-dev/csub/internal/job"
	"github.com/csub-dev/csub/internal/manifest"
	"github.com/csub-dev/csub/internal/render"
	"github.com/csub-dev/csub/internal/stage"
)

const manifestFile = "cs_manifest.db"

// Run the generation pipeline: resolve config, load the template, split
// the source into chunks, and write one job file per chunk.
func runGenerate(cmd *cobra.Command, args []string) error {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}

	ov := config.Overrides{
		Project:  get("project"),
		Queue:    get("queue"),
		CPUs:     get("cpus"),
		Walltime: get("walltime"),
		Mem:      get("mem"),
		Workdir:  get("workdir"),
		Overload: get("overload"),
		Submit:   get("submit"),
	}
	cfg, err := config.Resolve(ov, get("config"), get("script"))
	if err != nil {
		return err
	}

	tplPath := get("template")
	if tplPath == "" {
		tplPath = config.DefaultTemplatePath()
	}
	tpl, err := render.Load(tplPath)
	if err != nil {
		return fmt.Errorf("%w: %v", job.ErrRender, err)
	}

	source := "-"
	var in io.ReadCloser = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		in = f
		source = args[0]
	}
	defer in.Close()

	name := get("name")
	var recorder job.Recorder
	store, err := manifest.Open(filepath.Join(cfg.Workdir, manifestFile))
	if err != nil {
		log.Warn().Err(err).Msg("manifest unavailable, continuing without it")
	} else {
		defer store.Close()
		rr, err := store.NewRun(name, source, cfg.ChunkSize())
		if err != nil {
			log.Warn().Err(err).Msg("manifest run not recorded")
		} else {
			recorder = rr
		}
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	gen := &job.Generator{
		Config:   cfg,
		Template: tpl,
		Name:     name,
		Recorder: recorder,
	}
	if !jsonOut {
		gen.Out = os.Stdout
	}
	jobs, err := gen.Run(in)
	if err != nil {
		return err
	}
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	return nil
}

// defaultTemplate is the starter template written by init. PBS-flavored
// directives; any engine key can be dropped or rearranged freely.
const defaultTemplate = `#!/bin/bash
#PBS -N {{.name}}
#PBS -P {{.project}}
#PBS -q {{.queue}}
#PBS -l ncpus={{.cpus}}
#PBS -l walltime={{.walltime}}
#PBS -l mem={{.mem}}
cd '{{.workdir}}'
CHUNK='{{.chunk}}'
export CHUNK
{{.script}}`

const defaultConfig = `# csub defaults. CLI flags override any value here.
#project: myproject
#queue: normal
#cpus: 8
#walltime: "01:00:00"
#mem: 4gb
#overload: 1
#submit: qsub
`

// Write the per-user config and template if missing.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default per-user config and starter job template",
		RunE: func(cmd *cobra.Command, args []string) error {
			files := map[string]string{
				config.DefaultPath():         defaultConfig,
				config.DefaultTemplatePath(): defaultTemplate,
			}
			for path, content := range files {
				if _, err := os.Stat(path); err == nil {
					fmt.Printf("kept %s\n", path)
					continue
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return fmt.Errorf("create config dir: %w", err)
				}
				if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Printf("wrote %s\n", path)
			}
			return nil
		},
	}
}

// List recorded generation runs from the manifest.
func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded generation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			workdir, _ := cmd.Flags().GetString("workdir")
			abs, err := filepath.Abs(workdir)
			if err != nil {
				return err
			}
			store, err := manifest.Open(filepath.Join(abs, manifestFile))
			if err != nil {
				return fmt.Errorf("open manifest: %w", err)
			}
			defer store.Close()
			runs, err := store.Runs(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			for _, r := range runs {
				fmt.Printf("%s\t%s\t%s\tchunk=%d\tjobs=%d\t%s\n",
					r.ID, r.Name, r.Source, r.ChunkSize, r.Jobs, r.CreatedAt)
			}
			return nil
		},
	}
	cmd.Flags().StringP("workdir", "d", ".", "working directory holding the manifest")
	cmd.Flags().Bool("json", false, "print runs as JSON")
	return cmd
}

// Stage a run's chunk and job files to a cluster head node over SFTP.
func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload a run's chunk and job files to a cluster head node",
		RunE: func(cmd *cobra.Command, args []string) error {
			get := func(name string) string {
				v, _ := cmd.Flags().GetString(name)
				return v
			}
			workdir, err := filepath.Abs(get("workdir"))
			if err != nil {
				return err
			}
			port, _ := cmd.Flags().GetInt("port")
			target := stage.Target{
				Host:       get("host"),
				Port:       port,
				User:       get("user"),
				KeyPath:    get("key"),
				KnownHosts: get("known-hosts"),
				TrustKey:   get("trust"),
				RemoteDir:  get("remote-dir"),
			}
			n, err := stage.Push(cmd.Context(), target, workdir, get("name"))
			if err != nil {
				return err
			}
			fmt.Printf("pushed %d files to %s:%s\n", n, target.Host, target.RemoteDir)
			return nil
		},
	}
	cmd.Flags().StringP("name", "N", "", "job name to stage")
	cmd.Flags().StringP("workdir", "d", ".", "working directory holding the generated files")
	cmd.Flags().String("host", "", "head node host")
	cmd.Flags().Int("port", 22, "SSH port")
	cmd.Flags().String("user", "", "SSH user")
	cmd.Flags().String("key", "", "SSH private key path")
	cmd.Flags().String("known-hosts", "", "known_hosts file for strict host key checking")
	cmd.Flags().String("trust", "", "head node host key (authorized_keys line) to record before connecting")
	cmd.Flags().String("remote-dir", "", "remote directory receiving the files")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("known-hosts")
	_ = cmd.MarkFlagRequired("remote-dir")
	return cmd
}
