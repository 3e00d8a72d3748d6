// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
)

// DefaultRecords returns the built-in starter corpus: one record per
// common vulnerability class, each with a worked before/after fix.
// Useful for fresh deployments and integration tests; production
// corpora are imported from curated fix-commit datasets instead.
func DefaultRecords() []KnowledgeRecord {
	return []KnowledgeRecord{
		{
			ID:          "sql-injection-001",
			Severity:    datatypes.SeverityCritical,
			Description: "SQL injection: attacker-controlled input is concatenated into a database query, letting the attacker rewrite the statement.",
			CWEID:       "CWE-89",
			CVSSScore:   9.8,
			Language:    "python",
			Excerpts: []CodeExcerpt{{
				MethodName: "get_user",
				Before:     `cursor.execute("SELECT * FROM users WHERE id = '%s'" % user_id)`,
				After:      `cursor.execute("SELECT * FROM users WHERE id = %s", (user_id,))`,
			}},
			FixNarrative: "Use parameterized queries or prepared statements; never build SQL by string concatenation with user input.",
		},
		{
			ID:          "xss-stored-001",
			Severity:    datatypes.SeverityHigh,
			Description: "Stored cross-site scripting: a malicious script persisted on the server executes in other users' browsers.",
			CWEID:       "CWE-79",
			CVSSScore:   8.8,
			Language:    "javascript",
			Excerpts: []CodeExcerpt{{
				MethodName: "renderComment",
				Before:     `element.innerHTML = userInput;`,
				After:      `element.textContent = userInput;`,
			}},
			FixNarrative: "HTML-encode user input before rendering, or assign through safe DOM APIs such as textContent; sanitize rich content with a vetted library.",
		},
		{
			ID:          "path-traversal-001",
			Severity:    datatypes.SeverityHigh,
			Description: "Path traversal: '../' sequences in a user-supplied filename escape the intended directory and read arbitrary files.",
			CWEID:       "CWE-22",
			CVSSScore:   7.5,
			Language:    "python",
			Excerpts: []CodeExcerpt{{
				MethodName: "read_upload",
				Before:     `open(os.path.join(UPLOAD_DIR, filename))`,
				After:      `open(os.path.join(UPLOAD_DIR, secure_filename(filename)))`,
			}},
			FixNarrative: "Validate and canonicalize file paths, reject traversal sequences, and restrict access to an allow-listed directory.",
		},
		{
			ID:          "hardcoded-secret-001",
			Severity:    datatypes.SeverityMedium,
			Description: "Hardcoded credential: a password or API key committed in source code is readable by anyone with repository access.",
			CWEID:       "CWE-798",
			CVSSScore:   6.5,
			Language:    "python",
			Excerpts: []CodeExcerpt{{
				Before: `password = "s3cr3t-db-password"`,
				After:  `password = os.getenv("DB_PASSWORD")`,
			}},
			FixNarrative: "Move secrets out of source into environment variables, configuration injected at deploy time, or a secret manager.",
		},
		{
			ID:          "command-injection-001",
			Severity:    datatypes.SeverityCritical,
			Description: "Command injection: user input reaches a shell invocation and executes arbitrary system commands.",
			CWEID:       "CWE-78",
			CVSSScore:   9.8,
			Language:    "python",
			Excerpts: []CodeExcerpt{{
				MethodName: "ping_host",
				Before:     `os.system("ping -c 1 " + host)`,
				After:      `subprocess.run(["ping", "-c", "1", host], check=True)`,
			}},
			FixNarrative: "Never pass user input through a shell; invoke the program with an argument vector and validate the input against an allow-list.",
		},
	}
}

// Seed inserts the default records into the store, upserting by id so
// repeated seeding is safe. Returns the number of records written.
func Seed(ctx context.Context, store *Store) (int, error) {
	records := DefaultRecords()
	if err := store.PutAll(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
