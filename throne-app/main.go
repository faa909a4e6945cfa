package main

import (
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/compose-network/throne/log"
	"github.com/compose-network/throne/throne-app/config"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "throne",
		Short: "Throne trial attestation and progression engine",
		Long:  banner + "\n\nProves trial solutions, signs attestations and tracks round progression up to the King.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}

	keygenCmd = &cobra.Command{
		Use:   "keygen",
		Short: "Generate an attestation key and an admin key",
		RunE:  runKeygen,
	}

	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Run the circuit setup and persist the proving and verifying keys",
		RunE:  runSetup,
	}

	fingerprintCmd = &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the image id of the persisted verifying key",
		RunE:  runFingerprint,
	}
)

const banner = `
████████╗██╗  ██╗██████╗  ██████╗ ███╗   ██╗███████╗
╚══██╔══╝██║  ██║██╔══██╗██╔═══██╗████╗  ██║██╔════╝
   ██║   ███████║██████╔╝██║   ██║██╔██╗ ██║█████╗
   ██║   ██╔══██║██╔══██╗██║   ██║██║╚██╗██║██╔══╝
   ██║   ██║  ██║██║  ██║╚██████╔╝██║ ╚████║███████╗
   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝ ╚═╝  ╚═══╝╚══════╝`

func main() {
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "throne:", err)
		os.Exit(1)
	}
}

func registerCommands() {
	rootCmd.AddCommand(versionCmd, keygenCmd, setupCmd, fingerprintCmd)
	setupCmd.Flags().Bool("force", false, "replace existing keys")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", defaultConfigPath, "config file path")
	pf.String("log-level", "", "log level (trace, debug, info, warn, error)")
	pf.Bool("log-pretty", false, "human readable console logs")

	pf.String("listen-addr", "", "HTTP API listen address")
	pf.Bool("metrics", false, "serve prometheus metrics")

	pf.String("keys-dir", "", "directory holding the circuit keys")
	pf.String("prover-mode", "", "prover mode (local, remote)")
	pf.String("store-path", "", "pebble store directory")
}

const defaultConfigPath = "throne-app/configs/config.yaml"

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgFile, err)
	}
	applyFlags(cmd, cfg)
	return cfg, nil
}

func runApp(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Println(banner)
	logger := log.New(cfg.Log.Level, cfg.Log.Pretty)
	logger.Info().
		Str("version", Version).
		Str("commit", GitCommit).
		Str("built", BuildTime).
		Str("config", cfgFile).
		Str("listen_addr", cfg.API.ListenAddr).
		Str("store", cfg.Store.Backend).
		Str("prover", cfg.Prover.Mode).
		Bool("rounds", cfg.Rounds.Enabled).
		Bool("issuer", cfg.Attestation.Issuer).
		Msg("Starting throne")

	app, err := NewApp(cmd.Context(), cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("init throne: %w", err)
	}
	return app.Run(cmd.Context())
}

func runVersion(cmd *cobra.Command, _ []string) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "throne\t%s\n", Version)
	fmt.Fprintf(w, "commit\t%s\n", GitCommit)
	fmt.Fprintf(w, "built\t%s\n", BuildTime)
	fmt.Fprintf(w, "go\t%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	_ = w.Flush()
}

// applyFlags overrides config values with explicitly set command line flags.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	strs := map[string]*string{
		"log-level":   &cfg.Log.Level,
		"listen-addr": &cfg.API.ListenAddr,
		"keys-dir":    &cfg.Prover.KeysDir,
		"prover-mode": &cfg.Prover.Mode,
		"store-path":  &cfg.Store.Path,
	}
	for name, dst := range strs {
		if cmd.Flag(name).Changed {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}

	bools := map[string]*bool{
		"log-pretty": &cfg.Log.Pretty,
		"metrics":    &cfg.Metrics.Enabled,
	}
	for name, dst := range bools {
		if cmd.Flag(name).Changed {
			*dst, _ = cmd.Flags().GetBool(name)
		}
	}
}
