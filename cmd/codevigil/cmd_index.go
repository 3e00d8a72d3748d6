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

	"github.com/Balmy-afterGlow/CodeVigil/pkg/logging"
	"github.com/Balmy-afterGlow/CodeVigil/pkg/validation"
	"github.com/Balmy-afterGlow/CodeVigil/services/knowledge"
)

// runIndexBuild re-encodes the corpus into a fresh embedding index. A
// fresh index is left alone unless --force is given; --seed loads the
// built-in default records into an empty corpus first.
func runIndexBuild(cmd *cobra.Command, args []string) error {
	if err := validation.ValidateLanguage(indexLanguage); err != nil {
		return err
	}
	if err := validation.ValidateSeverity(indexSeverity); err != nil {
		return err
	}

	logger := logging.New(logging.Config{Service: "codevigil"})
	defer logger.Close()

	store, engine, err := openKnowledge(logger.Slog())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if seedCorpus {
		n, err := knowledge.Seed(ctx, store)
		if err != nil {
			return fmt.Errorf("failed to seed corpus: %w", err)
		}
		logger.Info("corpus seeded", "records", n)
	}

	if !forceRebuild {
		status, err := engine.Status(ctx)
		if err != nil {
			return err
		}
		if !status.Stale {
			logger.Info("index is fresh, skipping rebuild (use --force to override)",
				"indexed_records", status.IndexedRecords)
			return nil
		}
	}

	indexed, err := engine.Rebuild(ctx, knowledge.Filters{
		Language: indexLanguage,
		Severity: indexSeverity,
	}, indexLimit)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d records\n", indexed)
	return nil
}

// runIndexStatus prints index freshness.
func runIndexStatus(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{Service: "codevigil", Quiet: true})
	defer logger.Close()

	store, engine, err := openKnowledge(logger.Slog())
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := engine.Status(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("indexed records: %d\ncorpus records:  %d\nstale:           %v\n",
		status.IndexedRecords, status.CorpusRecords, status.Stale)
	return nil
}
