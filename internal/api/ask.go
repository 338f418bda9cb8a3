package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dbtalk/dbtalk/internal/config"
	"github.com/dbtalk/dbtalk/internal/history"
	"github.com/dbtalk/dbtalk/internal/nl2sql"
	"github.com/dbtalk/dbtalk/internal/query"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type questionRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	RunID      string `json:"run_id"`
	Answer     string `json:"answer"`
	SQL        string `json:"sql"`
	Context    string `json:"context"`
	Degraded   bool   `json:"degraded"`
	DurationMs int64  `json:"duration_ms"`
}

type archiveQueryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type archiveQueryResponse struct {
	Columns    []string       `json:"columns"`
	Rows       [][]query.Cell `json:"rows"`
	Truncated  bool           `json:"truncated"`
	DurationMs int64          `json:"duration_ms"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chain == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAIN_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}
	question, ok := readQuestion(w, r)
	if !ok {
		return
	}

	answer, err := deps.Chain.Ask(r.Context(), question)
	if err != nil {
		writeChainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		RunID:      answer.RunID,
		Answer:     answer.Text,
		SQL:        answer.SQL,
		Context:    answer.Context,
		Degraded:   answer.Degraded,
		DurationMs: answer.Duration.Milliseconds(),
	})
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chain == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAIN_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	question, ok := readQuestion(w, r)
	if !ok {
		return
	}

	translation, err := deps.Chain.Translate(r.Context(), question)
	if err != nil {
		writeChainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sql":   translation.SQL,
		"model": translation.Model,
	})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chain == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAIN_NOT_CONFIGURED", "schema introspection is not configured", false, nil)
		return
	}
	snapshot, err := deps.Chain.Schema(r.Context())
	if err != nil {
		writeChainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "run history is not configured", false, nil)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	records, err := deps.History.ListRecent(r.Context(), history.ClampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to load run history", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

func handleArchiveQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archive == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "history archive is not configured", false, nil)
		return
	}

	var request archiveQueryRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid archive query body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if !isReadOnlySQL(request.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, nil)
		return
	}
	rowLimit := request.RowLimit
	if rowLimit <= 0 || rowLimit > cfg.Query.RowLimit {
		rowLimit = cfg.Query.RowLimit
	}

	result, err := deps.Archive.Query(r.Context(), request.SQL, rowLimit)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "QUERY_EXECUTION_FAILED", "archive query failed", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, archiveQueryResponse{
		Columns:    result.Columns,
		Rows:       result.Rows,
		Truncated:  result.Truncated,
		DurationMs: result.Duration.Milliseconds(),
	})
}

func readQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var request questionRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question body", false, map[string]any{"details": err.Error()})
		return "", false
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return "", false
	}
	return request.Question, true
}

// writeChainError maps a failed run to a status code by the stage that failed.
func writeChainError(ctx context.Context, w http.ResponseWriter, err error) {
	extra := map[string]any{"details": err.Error()}
	stage, ok := nl2sql.FailedStage(err)
	if ok {
		extra["stage"] = string(stage)
	}

	switch {
	case errors.Is(err, nl2sql.ErrEmptyQuestion):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
	case errors.Is(err, nl2sql.ErrSchemaUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "database schema could not be read", true, extra)
	case ok && (stage == nl2sql.StageGenerateSQL || stage == nl2sql.StageGenerateAnswer):
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(ctx, w, http.StatusGatewayTimeout, "GENERATION_FAILED", "language model did not respond in time", true, extra)
			return
		}
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_FAILED", "language model request failed", true, extra)
	case ok && stage == nl2sql.StageExecuteQuery:
		writeError(ctx, w, http.StatusUnprocessableEntity, "QUERY_EXECUTION_FAILED", "generated query could not be executed", false, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "question could not be answered", false, extra)
	}
}

func isReadOnlySQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}
