package sqlite

import (
	"strings"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

// buildWhereClause builds a WHERE clause from query options.
func buildWhereClause(opts *storage.QueryOptions) (string, []interface{}) {
	conditions := []string{"agent_id = ?"}
	args := []interface{}{opts.AgentID}

	if opts.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, opts.UserID)
	}

	if opts.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, opts.Kind)
	}

	if opts.MinImportance > 0 {
		conditions = append(conditions, "importance >= ?")
		args = append(args, opts.MinImportance)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}
