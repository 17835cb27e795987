// main.go bootstraps stackr: it builds the root Cobra command, layers
// viper config over flags, and executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/stackr/internal/config"
	"github.com/example/stackr/internal/stack"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		handleError(err)
		os.Exit(exitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	opts := config.NewOptions()
	logLevel := "info"
	configPath := ""
	cmd := &cobra.Command{
		Use:           "stackr",
		Short:         "Dependency-ordered multi-stack apply/destroy orchestrator",
		Long: "stackr applies and destroys declared infrastructure stacks in dependency\n" +
			"order, retries transient provisioning failures, and manages the remote\n" +
			"state-lock table.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level for stackr output (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&configPath, "config", configPath, "Config file (default: STACKR_CONFIG, then ~/.config/stackr/config.*)")
	opts.BindFlags(cmd.PersistentFlags())

	applyCmd := newApplyCommand(opts, &logLevel)
	destroyCmd := newDestroyCommand(opts, &logLevel)
	locksCmd := newLocksCommand(opts)
	graphCmd := newGraphCommand(opts)
	runsCmd := newRunsCommand(opts)
	statusCmd := newStatusCommand(opts)
	cmd.AddCommand(applyCmd, destroyCmd, locksCmd, graphCmd, runsCmd, statusCmd)

	bindViper(&configPath, cmd, applyCmd, destroyCmd, locksCmd, graphCmd, runsCmd, statusCmd)
	return cmd
}

func bindViper(configPath *string, commands ...*cobra.Command) {
	if len(commands) == 0 {
		return
	}
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("STACKR")
	v.AutomaticEnv()

	cobra.OnInitialize(func() {
		// Runs after flag parsing, so --config is visible here.
		configFile := *configPath
		if configFile == "" {
			configFile = os.Getenv("STACKR_CONFIG")
		}
		configureConfigFile(v, configFile)
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			cobra.CheckErr(err)
		}
		for _, cmd := range commands {
			flagSets := []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()}
			for _, fs := range flagSets {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed {
						return
					}
					if !v.IsSet(f.Name) {
						return
					}
					setFlagFromViper(v, f)
				})
			}
		}
	})
}

// setFlagFromViper copies a viper value onto an unchanged flag. Slice
// flags are replaced element-wise: a list-valued config key must not
// collapse into one bracketed string.
func setFlagFromViper(v *viper.Viper, f *pflag.Flag) {
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		_ = sv.Replace(v.GetStringSlice(f.Name))
		return
	}
	val := fmt.Sprintf("%v", v.Get(f.Name))
	if val != "" {
		_ = f.Value.Set(val)
	}
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + "/.config/stackr")
	}
	v.AddConfigPath(".")
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	var cfgErr *stack.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		message = fmt.Sprintf("%s\nHint: fix the stack declaration file before retrying; nothing was applied.", err)
	case errors.Is(err, context.Canceled):
		message = "interrupted"
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

// exitCode maps errors to the documented codes: 2 for configuration or
// graph problems, 1 for anything else (including stack failures).
func exitCode(err error) int {
	var cfgErr *stack.ConfigError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}
