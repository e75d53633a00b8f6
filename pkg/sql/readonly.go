package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

var (
	// ErrEmptyQuery indicates an empty or whitespace-only query.
	ErrEmptyQuery = errors.New("empty query")
	// ErrNotSelect indicates the query is not a SELECT statement.
	ErrNotSelect = errors.New("only SELECT queries are allowed")
	// ErrForbiddenKeyword indicates a modifying or administrative keyword.
	ErrForbiddenKeyword = errors.New("query contains a forbidden keyword")
	// ErrSensitiveTable indicates the query references a restricted table.
	ErrSensitiveTable = errors.New("query references a restricted table")
	// ErrInjectionPattern indicates a string literal matched a known SQLi pattern.
	ErrInjectionPattern = errors.New("query contains a suspected injection pattern")
)

// forbiddenKeywords are rejected anywhere in the query, as whole words.
// SELECT-only enforcement already blocks most of these as statement heads;
// the token scan also catches them in subexpressions.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER",
	"CREATE", "TRUNCATE", "GRANT", "REVOKE", "EXEC", "EXECUTE",
}

// sensitiveTables hold credential and identity data and are never queryable
// through the gateway.
var sensitiveTables = []string{
	"users", "user_verifications", "api_keys", "refresh_tokens", "pending_registrations",
}

// DefaultRowLimit is appended to queries that do not specify their own LIMIT.
const DefaultRowLimit = 100

var (
	limitPattern   = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	wordBoundaries = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
	literalPattern = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// ValidateReadOnly runs the full gateway validation pipeline and returns the
// normalized, executable query. Checks run in a fixed order and the first
// failure wins:
//
//  1. Non-empty, single statement (trailing semicolon stripped)
//  2. Statement must start with SELECT
//  3. Forbidden keyword scan (whole tokens, outside string literals)
//  4. Sensitive table scan
//  5. Injection screening of string literals
//  6. LIMIT appended when absent
func ValidateReadOnly(rawQuery string) (string, error) {
	result := ValidateAndNormalize(rawQuery)
	if result.Error != nil {
		return "", result.Error
	}
	query := result.NormalizedSQL
	if query == "" {
		return "", ErrEmptyQuery
	}

	if !strings.HasPrefix(strings.ToUpper(query), "SELECT") {
		return "", ErrNotSelect
	}

	// Scan tokens with string literals blanked out so quoted data
	// cannot trip the keyword or table checks.
	blanked := literalPattern.ReplaceAllStringFunc(query, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
	for _, token := range wordBoundaries.FindAllString(blanked, -1) {
		upper := strings.ToUpper(token)
		for _, kw := range forbiddenKeywords {
			if upper == kw {
				return "", fmt.Errorf("%w: %s", ErrForbiddenKeyword, kw)
			}
		}
		lower := strings.ToLower(token)
		for _, tbl := range sensitiveTables {
			if lower == tbl {
				return "", fmt.Errorf("%w: %s", ErrSensitiveTable, tbl)
			}
		}
	}

	if fingerprint, hit := screenStringLiterals(query); hit {
		return "", fmt.Errorf("%w (fingerprint %s)", ErrInjectionPattern, fingerprint)
	}

	if !limitPattern.MatchString(query) {
		query = fmt.Sprintf("%s LIMIT %d", query, DefaultRowLimit)
	}

	return query, nil
}

// screenStringLiterals runs libinjection over each quoted literal in the
// query and returns the fingerprint of the first hit. Literals are where
// attacker-controlled text ends up after the structural checks pass.
func screenStringLiterals(query string) (string, bool) {
	for _, lit := range literalPattern.FindAllString(query, -1) {
		inner := strings.ReplaceAll(lit[1:len(lit)-1], "''", "'")
		if inner == "" {
			continue
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(inner); isSQLi {
			return string(fingerprint), true
		}
	}
	return "", false
}
