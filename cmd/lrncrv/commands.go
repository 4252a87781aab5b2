// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/learningcurve/cmd/lrncrv/config"
	"github.com/AleutianAI/learningcurve/pkg/ux"
	"github.com/AleutianAI/learningcurve/pkg/validation"
	"github.com/AleutianAI/learningcurve/services/curve/storage"
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var personalityLevel string

	root := &cobra.Command{
		Use:   "lrncrv",
		Short: "Generate learning curves for drug-response models",
		Long: `lrncrv trains a model on a sequence of growing subsets of a training
fold and scores each one on a fixed validation fold. The resulting score
table shows how performance scales with training-set size.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}
	root.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"output style: full, minimal or machine (default from "+ux.PersonalityEnv+" or terminal detection)")

	root.AddCommand(newRunCmd(), newModelsCmd(), newCheckpointCmd())
	return root
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model presets accepted by --model",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range PresetNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

// --- Checkpoint management ---

func newCheckpointCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or clear resumable run checkpoints",
	}
	cmd.PersistentFlags().StringVar(&dir, "checkpoint-dir", "",
		"checkpoint store (default <"+config.OutDirEnv+">/.checkpoint)")

	open := func() (*storage.BadgerCheckpoint, error) {
		out := config.OutputConfig{Root: config.DefaultOutRoot(), CheckpointDir: dir}
		return storage.OpenCheckpoint(storage.DefaultConfig(out.CheckpointPath()))
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List run keys with saved shards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ckpt, err := open()
			if err != nil {
				return err
			}
			defer ckpt.Close()

			keys, err := ckpt.Runs(cmd.Context())
			if err != nil {
				return err
			}
			for _, key := range keys {
				results, err := ckpt.Load(cmd.Context(), key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d shards\n", key, len(results))
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <run-key>...",
		Short: "Delete saved shards so the next run starts over",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := make([]string, 0, len(args))
			for _, arg := range args {
				key, err := validation.SanitizeRunKey(arg)
				if err != nil {
					return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
				}
				keys = append(keys, key)
			}

			ckpt, err := open()
			if err != nil {
				return err
			}
			defer ckpt.Close()

			for _, key := range keys {
				if err := ckpt.Delete(cmd.Context(), key); err != nil {
					return fmt.Errorf("clear %s: %w", key, err)
				}
				ux.Success("cleared " + key)
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}
