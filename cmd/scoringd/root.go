package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"scoringd/internal/config"
	"scoringd/internal/registry"
)

// options collects persistent flags. Flags override file and environment
// values only when set on the command line.
type options struct {
	configPath string
	addr       string
	modelPath  string
	modelDir   string
	logLevel   string
	logFormat  string
	dbPath     string
	natsURL    string
	task       string
	fanOut     bool
	cors       bool

	getenv func(string) string
}

func buildRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "scoringd",
		Short:         "Scoring proxy in front of a local llama.cpp inference server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&o.configPath, "config", "c", "", "Config file (.yaml, .yml, .json, .toml)")
	pf.StringVar(&o.addr, "addr", "", "HTTP listen address (default :5001, env SCORINGD_ADDR)")
	pf.StringVar(&o.modelPath, "model-path", "", "Model file to serve (env model_path)")
	pf.StringVar(&o.modelDir, "model-dir", "", "Directory searched for the first *.gguf when no model path is set (env AZUREML_MODEL_DIR)")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level: debug|info|warn|error (env SCORINGD_LOG_LEVEL)")
	pf.StringVar(&o.logFormat, "log-format", "", "Log format: console|json")
	pf.StringVar(&o.dbPath, "db", "", "SQLite stats database path (env SCORINGD_DB_PATH)")
	pf.StringVar(&o.natsURL, "nats-url", "", "Serve scoring over NATS request/reply at this URL (env SCORINGD_NATS_URL)")
	pf.StringVar(&o.task, "task", "", "Pin every request to this task type, e.g. chat-completion")
	pf.BoolVar(&o.fanOut, "fan-out", false, "Dispatch prompts concurrently when _batch_size > 1")
	pf.BoolVar(&o.cors, "cors", false, "Enable CORS on the HTTP API")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the backing server and serve scoring requests",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := o.load(cmd)
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg, cmd.ErrOrStderr())
			},
		},
		resolveModelCmd(o),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "scoringd %s (%s)\n", version, commit)
			},
		},
	)
	return root
}

func resolveModelCmd(o *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "resolve-model",
		Short:   "Print the model file serve would load",
		Example: "  scoringd resolve-model --model-dir /var/azureml-app/models\n  scoringd resolve-model --model-dir /var/azureml-app/models --all",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			if all {
				if cfg.ModelDir == "" {
					return errors.New("--all needs a model directory")
				}
				models, err := registry.NewGGUFScanner().Scan(cfg.ModelDir)
				if err != nil {
					return err
				}
				if len(models) == 0 {
					return fmt.Errorf("%w under %s", registry.ErrNoModel, cfg.ModelDir)
				}
				for _, m := range models {
					fmt.Fprintln(cmd.OutOrStdout(), m.Path)
				}
				return nil
			}
			p, err := resolveModel(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "List every *.gguf under the model directory in search order")
	return cmd
}

// load resolves configuration with precedence flag > env > file > default.
func (o *options) load(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	config.ApplyEnv(&cfg, o.getenv)

	flags := cmd.Flags()
	str := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	str("addr", &cfg.Addr, o.addr)
	str("model-path", &cfg.ModelPath, o.modelPath)
	str("model-dir", &cfg.ModelDir, o.modelDir)
	str("log-level", &cfg.Log.Level, o.logLevel)
	str("log-format", &cfg.Log.Format, o.logFormat)
	str("db", &cfg.Store.Path, o.dbPath)
	str("nats-url", &cfg.NATS.URL, o.natsURL)
	str("task", &cfg.TaskOverride, o.task)
	if flags.Changed("fan-out") {
		cfg.Client.EnableFanOut = o.fanOut
	}
	if flags.Changed("cors") {
		cfg.CORS.Enabled = o.cors
	}
	return cfg, cfg.Validate()
}

// resolveModel returns the published model path, or the first *.gguf under
// the model directory.
func resolveModel(cfg config.Config) (string, error) {
	if cfg.ModelPath != "" {
		return cfg.ModelPath, nil
	}
	if cfg.ModelDir == "" {
		return "", errors.New("no model: set model_path or model_dir")
	}
	return registry.FindModel(cfg.ModelDir)
}
