// Command gwctl is the operator CLI for the model gateway: read and update
// the active service configuration, and inspect or reset circuit records.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/arcline-ai/model-gateway/internal/circuitbreaker"
	"github.com/arcline-ai/model-gateway/internal/config"
	"github.com/arcline-ai/model-gateway/internal/kv"
	"github.com/arcline-ai/model-gateway/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type clients struct {
	settings *config.Settings
	store    *config.Store
	breaker  *circuitbreaker.Breaker
}

func connect(ctx context.Context, settingsPath string) (*clients, error) {
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(settings.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	store := kv.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), map[string]string{
		settings.ConfigTable: "configId",
		settings.HealthTable: "providerRegion",
	})
	return &clients{
		settings: settings,
		store:    config.NewStore(store, settings.ConfigTable, settings.ActiveConfigID, settings.CacheTTL()),
		breaker:  circuitbreaker.New(store, settings.HealthTable, circuitbreaker.Options{}),
	}, nil
}

func newRootCmd() *cobra.Command {
	var settingsPath string

	root := &cobra.Command{
		Use:           "gwctl",
		Short:         "Operate the model gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&settingsPath, "settings", os.Getenv("GATEWAY_SETTINGS"), "path to the settings YAML file")

	root.AddCommand(newConfigCmd(&settingsPath))
	root.AddCommand(newCircuitCmd(&settingsPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the gwctl version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Current())
		},
	})
	return root
}

func newConfigCmd(settingsPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and update the active service configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the active service configuration as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connect(cmd.Context(), *settingsPath)
			if err != nil {
				return err
			}
			cfg := c.store.Get(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	})

	var file string
	put := &cobra.Command{
		Use:   "put",
		Short: "Validate and write a new service configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file) //nolint:gosec
			if err != nil {
				return fmt.Errorf("reading config file: %w", err)
			}
			var cfg config.ServiceConfig
			if err := json.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("parsing config file: %w", err)
			}
			c, err := connect(cmd.Context(), *settingsPath)
			if err != nil {
				return err
			}
			if err := c.store.Update(cmd.Context(), &cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config %s written as %s\n", cfg.ConfigVersion, c.settings.ActiveConfigID)
			return nil
		},
	}
	put.Flags().StringVarP(&file, "file", "f", "", "JSON file holding the new ServiceConfig")
	_ = put.MarkFlagRequired("file")
	cmd.AddCommand(put)

	return cmd
}

func newCircuitCmd(settingsPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Inspect and reset circuit breaker records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <provider> <region>",
		Short: "Print the circuit record for a provider and region",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *settingsPath)
			if err != nil {
				return err
			}
			key := circuitbreaker.Key(args[0], args[1])
			st, ok := c.breaker.Snapshot(cmd.Context(), key)
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No record for %s (treated as CLOSED)\n", key)
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <provider> <region>",
		Short: "Overwrite the circuit record with a fresh CLOSED state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			c, err := connect(ctx, *settingsPath)
			if err != nil {
				return err
			}
			key := circuitbreaker.Key(args[0], args[1])
			if err := c.breaker.Reset(ctx, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Circuit %s reset to CLOSED\n", key)
			return nil
		},
	})

	return cmd
}
