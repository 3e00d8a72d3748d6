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
	"log/slog"
	"os"

	"github.com/Balmy-afterGlow/CodeVigil/services/knowledge"
)

// knowledgeEnv resolves the corpus and index locations from the
// environment, with local working-directory defaults for CLI use.
func knowledgeEnv() (dbPath, indexDir string) {
	dbPath = os.Getenv("KNOWLEDGE_DB_PATH")
	if dbPath == "" {
		dbPath = "data/knowledge.db"
		slog.Warn("KNOWLEDGE_DB_PATH not set, defaulting", "path", dbPath)
	}
	indexDir = os.Getenv("KNOWLEDGE_INDEX_DIR")
	if indexDir == "" {
		indexDir = "data/index"
		slog.Warn("KNOWLEDGE_INDEX_DIR not set, defaulting", "dir", indexDir)
	}
	return dbPath, indexDir
}

// openKnowledge opens the corpus store and builds the retrieval engine
// over it. The embedder is optional: without an embedding key the
// engine still works, serving lexical results only.
func openKnowledge(logger *slog.Logger) (*knowledge.Store, *knowledge.RetrievalEngine, error) {
	dbPath, indexDir := knowledgeEnv()

	store, err := knowledge.OpenStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}

	var embedder knowledge.Embedder
	if e, err := knowledge.NewOpenAIEmbedder(); err != nil {
		logger.Warn("embedder unavailable, retrieval will be lexical only", "error", err)
	} else {
		embedder = e
	}

	engine := knowledge.NewRetrievalEngine(store, embedder, indexDir, logger)
	return store, engine, nil
}
