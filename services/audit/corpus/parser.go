// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Record format: line-oriented blocks separated by blank lines. Each line
// is "key: value"; list values are comma-separated ids; lines starting
// with '#' are comments. Unknown keys, duplicate keys, unknown enum
// values, and missing required keys are all malformed records. Nothing is
// defaulted.

var claimFields = map[string]bool{
	"id":         true,
	"tag":        true,
	"anchor":     true,
	"depends_on": true,
	"summary":    true,
}

var issueFields = map[string]bool{
	"id":           true,
	"category":     true,
	"status":       true,
	"title":        true,
	"blocks":       true,
	"closure_test": true,
	"no_smuggling": true,
	"satisfied_by": true,
	"progress":     true,
}

// rawRecord is one parsed block before field interpretation.
type rawRecord struct {
	fields map[string]string
	lines  map[string]int
	start  int
}

func (r rawRecord) lineOf(key string) int {
	if n, ok := r.lines[key]; ok {
		return n
	}
	return r.start
}

// parseBlocks splits the input into raw records, enforcing line syntax,
// the allowed key set, and per-block key uniqueness.
func parseBlocks(path string, in io.Reader, allowed map[string]bool) ([]rawRecord, error) {
	scanner := bufio.NewScanner(in)

	var records []rawRecord
	var cur *rawRecord
	lineNo := 0

	flush := func() {
		if cur != nil {
			records = append(records, *cur)
			cur = nil
		}
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, &MalformedRecordError{Path: path, Line: lineNo,
				Reason: fmt.Sprintf("expected \"key: value\", got %q", trimmed)}
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if !allowed[key] {
			return nil, &MalformedRecordError{Path: path, Line: lineNo,
				Reason: fmt.Sprintf("unknown field %q", key)}
		}

		if cur == nil {
			cur = &rawRecord{
				fields: make(map[string]string),
				lines:  make(map[string]int),
				start:  lineNo,
			}
		}
		if _, dup := cur.fields[key]; dup {
			return nil, &MalformedRecordError{Path: path, Line: lineNo,
				Reason: fmt.Sprintf("duplicate field %q", key)}
		}
		cur.fields[key] = value
		cur.lines[key] = lineNo
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	flush()

	return records, nil
}

// parseIDList splits a comma-separated id list. An empty value is an empty
// list; an empty element between commas is malformed.
func parseIDList(path string, line int, field, value string) ([]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, &MalformedRecordError{Path: path, Line: line,
				Reason: fmt.Sprintf("empty element in %s list", field)}
		}
		out = append(out, p)
	}
	return out, nil
}

func requireField(path string, rec rawRecord, key string) (string, error) {
	v, ok := rec.fields[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", &MalformedRecordError{Path: path, Line: rec.start,
			Reason: fmt.Sprintf("missing required field %q", key)}
	}
	return v, nil
}

// ParseClaims reads claim records from in. The path is used only for error
// locations. Duplicate-id detection happens in NewClaimSet; everything
// structural is enforced here.
func ParseClaims(path string, in io.Reader) ([]Claim, error) {
	records, err := parseBlocks(path, in, claimFields)
	if err != nil {
		return nil, err
	}

	claims := make([]Claim, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		id, err := requireField(path, rec, "id")
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, &DuplicateIDError{ID: id, Path: path, Line: rec.lineOf("id")}
		}
		seen[id] = true
		rawTag, err := requireField(path, rec, "tag")
		if err != nil {
			return nil, err
		}
		tag, err := ParseTag(rawTag)
		if err != nil {
			return nil, &MalformedRecordError{Path: path, Line: rec.lineOf("tag"),
				Reason: fmt.Sprintf("unknown tag %q", rawTag)}
		}

		deps, err := parseIDList(path, rec.lineOf("depends_on"), "depends_on", rec.fields["depends_on"])
		if err != nil {
			return nil, err
		}
		if tag.Axiomatic() && len(deps) > 0 {
			return nil, &MalformedRecordError{Path: path, Line: rec.lineOf("depends_on"),
				Reason: fmt.Sprintf("claim %s tagged %s must not declare dependencies", id, tag)}
		}

		claims = append(claims, Claim{
			ID:        id,
			Anchor:    rec.fields["anchor"],
			Tag:       tag,
			DependsOn: deps,
			Summary:   rec.fields["summary"],
		})
	}
	return claims, nil
}

// ParseIssues reads issue records from in.
func ParseIssues(path string, in io.Reader) ([]Issue, error) {
	records, err := parseBlocks(path, in, issueFields)
	if err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		id, err := requireField(path, rec, "id")
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, &DuplicateIDError{ID: id, Path: path, Line: rec.lineOf("id")}
		}
		seen[id] = true
		rawCat, err := requireField(path, rec, "category")
		if err != nil {
			return nil, err
		}
		cat, err := ParseCategory(rawCat)
		if err != nil {
			return nil, &MalformedRecordError{Path: path, Line: rec.lineOf("category"),
				Reason: fmt.Sprintf("unknown category %q", rawCat)}
		}
		rawStatus, err := requireField(path, rec, "status")
		if err != nil {
			return nil, err
		}
		status, err := ParseStatus(rawStatus)
		if err != nil {
			return nil, &MalformedRecordError{Path: path, Line: rec.lineOf("status"),
				Reason: fmt.Sprintf("unknown status %q", rawStatus)}
		}

		blocks, err := parseIDList(path, rec.lineOf("blocks"), "blocks", rec.fields["blocks"])
		if err != nil {
			return nil, err
		}
		noSmuggling, err := parseIDList(path, rec.lineOf("no_smuggling"), "no_smuggling", rec.fields["no_smuggling"])
		if err != nil {
			return nil, err
		}
		satisfiedBy, err := parseIDList(path, rec.lineOf("satisfied_by"), "satisfied_by", rec.fields["satisfied_by"])
		if err != nil {
			return nil, err
		}

		issues = append(issues, Issue{
			ID:          id,
			Category:    cat,
			Status:      status,
			Title:       rec.fields["title"],
			Blocks:      blocks,
			ClosureTest: rec.fields["closure_test"],
			NoSmuggling: noSmuggling,
			SatisfiedBy: satisfiedBy,
			Progress:    rec.fields["progress"],
		})
	}
	return issues, nil
}
