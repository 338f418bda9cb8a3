package nl2sql

import (
	"regexp"
	"strings"

	"github.com/dbtalk/dbtalk/internal/query"
)

const fence = "```"

var (
	verbPattern     = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	nextWordPattern = regexp.MustCompile(`^\s+([A-Za-z]+)\b`)
	// WITH only opens a statement when a common table expression follows.
	cteHeadPattern  = regexp.MustCompile(`(?i)^with\s+(recursive\s+)?[A-Za-z_"][A-Za-z0-9_"]*\s*(\([^)]*\)\s*)?as\s*\(`)
	fenceTagPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_+-]*$`)
)

// Words that follow a verb in prose ("select the rows") but never in SQL.
var proseWords = map[string]bool{
	"the": true, "an": true, "some": true, "any": true,
	"these": true, "those": true, "this": true, "that": true, "it": true,
	"them": true, "each": true, "every": true, "your": true, "my": true,
	"our": true, "which": true, "what": true, "for": true, "to": true,
}

// Commentary some models append after the statement.
var trailingMarkers = []string{"Response :", "Response:", "Explanation:", "Note:", fence}

var statementKeywords = map[string]bool{
	"SELECT": true,
	"INSERT": true,
	"UPDATE": true,
	"DELETE": true,
	"WITH":   true,
}

var inlineFenceTags = map[string]bool{
	"sql":        true,
	"sqlite":     true,
	"duckdb":     true,
	"postgresql": true,
	"postgres":   true,
}

// ExtractSQL reduces a model response to one SQL statement. A fenced block wins
// over a bare statement; when neither is found the trimmed response is returned
// as is.
func ExtractSQL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if body, ok := fencedBody(trimmed); ok {
		if statement := cleanStatement(body); statement != "" {
			return statement
		}
	}
	if start := firstVerb(trimmed); start >= 0 {
		if statement := cleanStatement(trimmed[start:]); statement != "" {
			return statement
		}
	}
	return trimmed
}

func fencedBody(text string) (string, bool) {
	open := strings.Index(text, fence)
	if open < 0 {
		return "", false
	}
	rest := text[open+len(fence):]
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	body := rest[:end]

	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		tag := strings.TrimSpace(body[:newline])
		if tag == "" || (fenceTagPattern.MatchString(tag) && !statementKeywords[strings.ToUpper(tag)]) {
			body = body[newline+1:]
		}
	} else if fields := strings.Fields(body); len(fields) > 1 && inlineFenceTags[strings.ToLower(fields[0])] {
		body = strings.TrimSpace(body)[len(fields[0]):]
	}
	return strings.TrimSpace(body), true
}

// firstVerb returns the offset of the earliest verb that opens a statement.
// When every verb reads as prose the earliest plain verb is used.
func firstVerb(text string) int {
	fallback := -1
	for _, loc := range verbPattern.FindAllStringIndex(text, -1) {
		if strings.EqualFold(text[loc[0]:loc[1]], "with") {
			if cteHeadPattern.MatchString(text[loc[0]:]) {
				return loc[0]
			}
			continue
		}
		if fallback < 0 {
			fallback = loc[0]
		}
		next := nextWordPattern.FindStringSubmatch(text[loc[1]:])
		if next == nil || !proseWords[strings.ToLower(next[1])] {
			return loc[0]
		}
	}
	return fallback
}

func cleanStatement(text string) string {
	return query.StripTrailingSemicolons(cutStatement(text))
}

// cutStatement keeps text up to the first trailing marker or through the first
// semicolon, ignoring both inside quoted literals and identifiers.
func cutStatement(text string) string {
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			continue
		case ';':
			return text[:i+1]
		}
		for _, marker := range trailingMarkers {
			if strings.HasPrefix(text[i:], marker) {
				return text[:i]
			}
		}
	}
	return text
}
