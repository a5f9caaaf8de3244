package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wolfishy/nexus-cli/internal/config"
	"github.com/wolfishy/nexus-cli/internal/doctor"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and lock configuration",
	}
	cmd.AddCommand(newConfigCheckCmd(g), newConfigHashUpdateCmd(g))
	return cmd
}

func newConfigCheckCmd(g *globalFlags) *cobra.Command {
	var (
		jsonOut bool
		strict  bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load the configuration and run host checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			result := doctor.New(cfg).Validate()

			out := cmd.OutOrStdout()
			if jsonOut {
				js, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, js)
			} else {
				fmt.Fprint(out, doctor.FormatHuman(result))
			}

			switch {
			case !result.Valid:
				return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
			case strict && len(result.Warnings) > 0:
				return fmt.Errorf("configuration has %d warning(s) (--strict)", len(result.Warnings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the result as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}

func newConfigHashUpdateCmd(g *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "hash-update",
		Short: "Write the .checksums manifest for the config file and .env",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := g.configPath
			if path == "" {
				discovered, err := config.Discover()
				if err != nil {
					return err
				}
				path = discovered
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			if info, err := os.Stat(abs); err == nil && info.IsDir() {
				abs = filepath.Join(abs, "config.yaml")
			}

			manifest, err := config.GenerateChecksums(filepath.Dir(abs), config.ScopeFiles(abs), dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range manifest.Files {
				if !f.Exists {
					fmt.Fprintf(out, "  skip  %s (not present)\n", f.Filename)
					continue
				}
				fmt.Fprintf(out, "  hash  %s %s\n", f.Filename, f.Hash)
			}
			if manifest.Written {
				fmt.Fprintf(out, "Wrote %s\n", manifest.ChecksumPath)
			} else {
				fmt.Fprintf(out, "Dry run: %s not written\n", manifest.ChecksumPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute hashes without writing the manifest")
	return cmd
}
