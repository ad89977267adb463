package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/cloudxfer/pkg/configutils"
	"github.com/sgl-project/cloudxfer/pkg/logging"
	"github.com/sgl-project/cloudxfer/pkg/transfer"
	"github.com/sgl-project/cloudxfer/pkg/version"
)

var (
	cfgFile string
	debug   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cloudxfer",
		Short:         "Transfer files between AWS S3, Azure Blob Storage and Google Cloud Storage",
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the configuration file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newCopyCmd(),
		newBatchCmd(),
		newListCmd(),
		newDeleteCmd(),
		newInfoCmd(),
		newProvidersCmd(),
		newTestCmd(),
		newCheckConfigCmd(),
	)
	return root
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		if err := configutils.ResolveAndMergeFile(v, cfgFile); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}
	if debug {
		v.Set("logging.debug", true)
	}
	return v, nil
}

// runWithManager wires viper, logging and the transfer manager together and
// hands the manager to fn. Construction errors surface before fn runs.
func runWithManager(fn func(ctx context.Context, m *transfer.Manager, log logging.Interface) error) error {
	var runErr error
	app := fx.New(
		fx.NopLogger,
		fx.Provide(newViper),
		logging.Module,
		transfer.Module,
		fx.Invoke(func(m *transfer.Manager, log logging.Interface) {
			runErr = fn(context.Background(), m, log)
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	return runErr
}

// runWithConfig is runWithManager for commands that only need the resolved
// configuration.
func runWithConfig(fn func(cfg *transfer.Config) error) error {
	var runErr error
	app := fx.New(
		fx.NopLogger,
		fx.Provide(newViper),
		logging.Module,
		transfer.Module,
		fx.Invoke(func(cfg *transfer.Config) {
			runErr = fn(cfg)
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	return runErr
}
