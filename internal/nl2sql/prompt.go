package nl2sql

import (
	"fmt"
	"strings"

	"github.com/dbtalk/dbtalk/internal/schema"
)

const defaultDialect = "SQLite"

const sqlPromptTemplate = `You are a database expert.

Database Schema:
%s
Instructions:
- Generate ONE correct SQL query for %s that answers the given user question.
- Only output the SQL command.
- No explanations, no examples, no prefixes (such as 'Example:', 'SQL:', 'Response:', 'Result:').
- No formatting like markdown (no ` + "```" + `sql blocks).
- Output ONLY the SQL query with no extra text.

User Question:
%s

Remember: ONLY output a valid SQL command.`

const answerPromptTemplate = `Based on the provided data:
%s

Please answer the question "%s" in natural language. Answer conversationally and use only the data above. If the data says no result is available, say that the question could not be answered from the database.`

// BuildSQLPrompt renders the schema and question into the SQL synthesis prompt.
func BuildSQLPrompt(snapshot schema.Snapshot, question, dialect string) string {
	if strings.TrimSpace(dialect) == "" {
		dialect = defaultDialect
	}
	rendered := snapshot.String()
	if rendered == "" {
		rendered = "(no tables)\n"
	}
	return fmt.Sprintf(sqlPromptTemplate, rendered, dialect, strings.TrimSpace(question))
}

// BuildAnswerPrompt renders retrieved rows and the question into the answer
// synthesis prompt.
func BuildAnswerPrompt(contextData, question string) string {
	return fmt.Sprintf(answerPromptTemplate, strings.TrimSpace(contextData), strings.TrimSpace(question))
}
