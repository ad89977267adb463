package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sgl-project/cloudxfer/pkg/logging"
	"github.com/sgl-project/cloudxfer/pkg/storage"
	"github.com/sgl-project/cloudxfer/pkg/transfer"
	"github.com/sgl-project/cloudxfer/pkg/utils"
)

func newCopyCmd() *cobra.Command {
	var (
		metadataJSON string
		contentType  string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "copy SOURCE DESTINATION",
		Short: "Copy a file between local paths and storage URLs",
		Long: `Copy a file. Either side may be a local path or a storage URL
(s3://, azure://, gcs://). Copies between two URLs on the same provider run
server-side; across providers the file is staged locally.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithManager(func(ctx context.Context, m *transfer.Manager, log logging.Interface) error {
				var opts []storage.UploadOption
				if contentType != "" {
					opts = append(opts, storage.WithContentType(contentType))
				}
				if metadataJSON != "" {
					metadata := map[string]string{}
					if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
						return fmt.Errorf("invalid --metadata: %w", err)
					}
					opts = append(opts, storage.WithMetadata(metadata))
				}

				if !force && storage.IsStorageURL(args[1]) {
					if exists, err := m.FileExists(ctx, args[1]); err == nil && exists {
						return fmt.Errorf("destination %s already exists, use --force to overwrite", args[1])
					}
				}

				result, err := m.CopyFile(ctx, args[0], args[1], opts...)
				if err != nil {
					return err
				}
				if !result.Success {
					return errors.New(result.ErrorMessage)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Transferred %s -> %s: %s in %.1fs (%s)\n",
					result.SourcePath, result.DestinationPath,
					utils.FormatBytes(result.BytesTransferred),
					result.DurationSeconds,
					utils.TransferSpeed(result.BytesTransferred, result.DurationSeconds))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "object metadata as a JSON object")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type for the destination object")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing destination object")
	return cmd
}

func newBatchCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Run a batch of transfers described in a JSON file",
		Long: `Run the transfers listed in FILE sequentially, in order. FILE holds a
JSON array of {"source": ..., "destination": ..., "metadata": {...}} objects.
A failed transfer never aborts the batch; the command exits non-zero if any
item failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading batch file: %w", err)
			}
			var requests []transfer.TransferRequest
			if err := json.Unmarshal(data, &requests); err != nil {
				return fmt.Errorf("parsing batch file: %w", err)
			}
			if len(requests) == 0 {
				return errors.New("batch file contains no transfers")
			}

			return runWithManager(func(ctx context.Context, m *transfer.Manager, log logging.Interface) error {
				batch := m.BatchCopy(ctx, requests)

				for i, result := range batch.Results {
					status := "OK"
					detail := utils.FormatBytes(result.BytesTransferred)
					if !result.Success {
						status = "FAILED"
						detail = result.ErrorMessage
					}
					fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] %-6s %s -> %s (%s)\n",
						i+1, batch.Total, status, result.SourcePath, result.DestinationPath, detail)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Done: %d succeeded, %d failed out of %d\n",
					batch.Succeeded, batch.Failed, batch.Total)

				if outputFile != "" {
					out, err := json.MarshalIndent(batch, "", "  ")
					if err != nil {
						return err
					}
					if err := os.WriteFile(outputFile, out, 0o644); err != nil {
						return fmt.Errorf("writing results file: %w", err)
					}
				}

				if batch.Failed > 0 {
					return fmt.Errorf("%d of %d transfers failed", batch.Failed, batch.Total)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the batch results as JSON to this file")
	return cmd
}

func newListCmd() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "list URL",
		Short: "List objects under a storage URL prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithManager(func(ctx context.Context, m *transfer.Manager, log logging.Interface) error {
				files, err := m.ListFiles(ctx, args[0])
				if err != nil {
					return err
				}
				for _, f := range files {
					if long {
						fmt.Fprintf(cmd.OutOrStdout(), "%12s  %s  %s\n",
							utils.FormatBytes(f.Size), f.LastModified, f.Name)
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), f.Name)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "show size and modification time")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete URL",
		Short: "Delete the object at a storage URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Delete %s? [y/N]: ", args[0])
				reader := bufio.NewReader(cmd.InOrStdin())
				answer, _ := reader.ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			return runWithManager(func(ctx context.Context, m *transfer.Manager, log logging.Interface) error {
				ok, err := m.DeleteFile(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("failed to delete %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without confirmation")
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info URL",
		Short: "Show metadata of the object at a storage URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithManager(func(ctx context.Context, m *transfer.Manager, log logging.Interface) error {
				info, err := m.FileInfo(ctx, args[0])
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported storage providers and their configuration state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithManager(func(ctx context.Context, m *transfer.Manager, log logging.Interface) error {
				configured := make(map[storage.Provider]bool)
				for _, p := range m.ConfiguredProviders() {
					configured[p] = true
				}
				for _, p := range storage.Providers() {
					state := "not configured"
					if configured[p] {
						state = "configured"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", p, state)
				}
				return nil
			})
		},
	}
}

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test connectivity to every configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithManager(func(ctx context.Context, m *transfer.Manager, log logging.Interface) error {
				results, err := m.TestConnections(ctx)
				if len(results) == 0 {
					return errors.New("no providers configured")
				}
				for _, p := range storage.Providers() {
					ok, probed := results[p]
					if !probed {
						continue
					}
					state := "OK"
					if !ok {
						state = "FAILED"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", p, state)
				}
				return err
			})
		},
	}
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and show the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(func(cfg *transfer.Config) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "max_retries:       %d\n", cfg.MaxRetries)
				fmt.Fprintf(out, "retry_delay:       %s\n", cfg.RetryDelay)
				fmt.Fprintf(out, "timeout:           %s\n", cfg.Timeout)
				fmt.Fprintf(out, "scratch_dir:       %s\n", cfg.ScratchDir)
				fmt.Fprintf(out, "breaker_threshold: %d\n", cfg.BreakerThreshold)
				fmt.Fprintf(out, "breaker_cooldown:  %s\n", cfg.BreakerCooldown)
				fmt.Fprintf(out, "aws:               %s\n", configuredState(cfg.AWS.Configured()))
				fmt.Fprintf(out, "azure:             %s\n", configuredState(cfg.Azure.Configured()))
				fmt.Fprintf(out, "gcp:               %s\n", configuredState(cfg.GCP.Configured()))
				return nil
			})
		},
	}
}

func configuredState(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
