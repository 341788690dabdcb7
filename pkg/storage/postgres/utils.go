package postgres

import (
	"fmt"
	"strings"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

// buildWhereClause builds a WHERE clause starting from $1.
func buildWhereClause(opts *storage.QueryOptions) (string, []interface{}) {
	return buildWhereClauseWithOffset(opts, 1)
}

// buildWhereClauseWithOffset builds a WHERE clause starting from a specific parameter index.
func buildWhereClauseWithOffset(opts *storage.QueryOptions, startIndex int) (string, []interface{}) {
	argIndex := startIndex
	conditions := []string{fmt.Sprintf("agent_id = $%d", argIndex)}
	args := []interface{}{opts.AgentID}
	argIndex++

	if opts.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, opts.UserID)
		argIndex++
	}

	if opts.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIndex))
		args = append(args, opts.Kind)
		argIndex++
	}

	if opts.MinImportance > 0 {
		conditions = append(conditions, fmt.Sprintf("importance >= $%d", argIndex))
		args = append(args, opts.MinImportance)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}
