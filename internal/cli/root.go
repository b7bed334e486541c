package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/version"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string
	Server     string
	Transport  string
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:           "codesmith",
		Short:         "codesmith CLI: document tools, agents and code generation",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: configs/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "Daemon URL (default: server.addr from config)")
	cmd.PersistentFlags().StringVar(&opts.Transport, "transport", "", "Generate transport: connect or ndjson (default: server.transport from config)")

	cmd.AddCommand(NewDoctorCmd(opts))
	cmd.AddCommand(NewVersionCmd())
	cmd.AddCommand(NewSessionCmd(opts))
	cmd.AddCommand(NewToolCmd(opts))
	cmd.AddCommand(NewAgentCmd(opts))
	cmd.AddCommand(NewFilesCmd(opts))
	cmd.AddCommand(NewGenerateCmd(opts))

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig wraps config loading with shared options.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

type target struct {
	baseURL   string
	transport string
}

// resolveTarget prefers explicit flags and only reads the config file for
// values that were not given.
func resolveTarget(opts *Options) (target, error) {
	t := target{baseURL: opts.Server, transport: strings.ToLower(strings.TrimSpace(opts.Transport))}
	if t.baseURL == "" || t.transport == "" {
		cfg, err := loadConfig(opts)
		if err != nil {
			return target{}, err
		}
		if t.baseURL == "" {
			t.baseURL = cfg.Server.Addr
		}
		if t.transport == "" {
			t.transport = strings.ToLower(strings.TrimSpace(cfg.Server.Transport))
		}
	}
	t.baseURL = strings.TrimRight(daemonURL(t.baseURL), "/")
	return t, nil
}

func newClient(opts *Options) (*Client, error) {
	t, err := resolveTarget(opts)
	if err != nil {
		return nil, err
	}
	return NewClient(t.baseURL), nil
}
