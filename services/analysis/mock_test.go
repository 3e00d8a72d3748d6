// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/datatypes"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/gateway"
	"github.com/Balmy-afterGlow/CodeVigil/services/knowledge"
)

// MockGateway scripts gateway responses for pipeline tests.
type MockGateway struct {
	mu      sync.Mutex
	calls   int
	prompts []string

	// Respond produces the reply for one prompt. Nil means every call
	// fails with a transport error.
	Respond func(prompt string) (string, error)
}

func (m *MockGateway) Infer(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	respond := m.Respond
	m.mu.Unlock()

	if respond == nil {
		return "", &gateway.GatewayError{Kind: gateway.KindTransport, Message: "scripted failure"}
	}
	return respond(prompt)
}

func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockGateway) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

var promptPathPattern = regexp.MustCompile(`(?m)^Path: (.+)$`)

// scoreResponder answers triage prompts with the scripted score per
// path, echoing back exactly the paths the prompt asked about.
func scoreResponder(scores map[string]float64) func(string) (string, error) {
	return func(prompt string) (string, error) {
		type entry struct {
			Path       string  `json:"path"`
			Score      float64 `json:"score"`
			Confidence float64 `json:"confidence"`
			Rationale  string  `json:"rationale"`
		}
		var out struct {
			Scores []entry `json:"scores"`
		}
		for _, match := range promptPathPattern.FindAllStringSubmatch(prompt, -1) {
			path := match[1]
			score, ok := scores[path]
			if !ok {
				continue
			}
			out.Scores = append(out.Scores, entry{
				Path: path, Score: score, Confidence: 0.9, Rationale: "scripted",
			})
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// blockingGateway honors the call context the way the HTTP gateway
// does. The first call signals started, blocks until released and
// fails if its context is canceled while it waits; later calls answer
// immediately.
type blockingGateway struct {
	respond func(string) (string, error)
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *blockingGateway) Infer(ctx context.Context, prompt string) (string, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		select {
		case <-g.release:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return "", &gateway.GatewayError{Kind: gateway.KindTransport, Message: "request aborted", Cause: err}
	}
	return g.respond(prompt)
}

// timeoutResponder fails every call with a timeout.
func timeoutResponder(string) (string, error) {
	return "", &gateway.GatewayError{Kind: gateway.KindTimeout, Message: "deadline exceeded"}
}

// reportJSON is a minimal valid deep-analysis reply with one finding.
func reportJSON(title, severity string) string {
	return fmt.Sprintf(`{
		"vulnerabilities": [{
			"title": %q,
			"severity": %q,
			"cwe_id": "CWE-89",
			"description": "SQL injection",
			"location": {"start_line": 10, "end_line": 12, "function": "getUser"},
			"code_snippet": "db.Query(sql + input)",
			"impact": "data exfiltration",
			"remediation": "use parameterized queries",
			"confidence": 0.9
		}],
		"fix_suggestions": [],
		"overall_risk": %q,
		"summary": "one injection issue"
	}`, title, severity, severity)
}

// MockRetriever scripts retrieval hits for remediation tests.
type MockRetriever struct {
	Hits []knowledge.SearchHit
	Err  error

	mu      sync.Mutex
	queries []string
}

func (m *MockRetriever) Search(_ context.Context, query string, k int, _ knowledge.Filters) ([]knowledge.SearchHit, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Hits) > k {
		return m.Hits[:k], nil
	}
	return m.Hits, nil
}

func testTuning() TuningConfig {
	cfg := DefaultTuning()
	cfg.BatchDelay = 0
	cfg.DeepScanDelay = 0
	cfg.DeepScanWorkers = 2
	return cfg
}

func candidateList(paths ...string) []datatypes.FileCandidate {
	out := make([]datatypes.FileCandidate, 0, len(paths))
	for _, p := range paths {
		out = append(out, datatypes.FileCandidate{
			Path:     p,
			Language: "python",
			Content:  "print('hello')",
		})
	}
	return out
}
