package repository

import (
	"fmt"
	"strings"

	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

// scopeColumns names the SQL expressions a predicate is compiled against.
// An empty column means the table cannot satisfy that clause.
type scopeColumns struct {
	tenant     string
	team       string
	createdBy  string
	assignedTo string
}

var (
	ticketScope   = scopeColumns{tenant: "tenant_id", team: "team_id", createdBy: "created_by", assignedTo: "assigned_to"}
	customerScope = scopeColumns{tenant: "tenant_id", team: "team_id", createdBy: "created_by"}
	ledgerScope   = scopeColumns{tenant: "tenant_id", team: "team_id", createdBy: "created_by"}
	actorScope    = scopeColumns{
		tenant:    "tenant_id",
		team:      "(CASE WHEN role IN ('Owner','Admin') THEN id ELSE created_by END)",
		createdBy: "created_by",
	}
)

// scopeClause compiles pred into a WHERE fragment, appending its arguments.
func scopeClause(pred visibility.Predicate, cols scopeColumns, args []any) (string, []any) {
	if pred.TenantID == "" || pred.IsNone() {
		return "FALSE", args
	}
	orig := args
	args = append(args, pred.TenantID)
	tenant := fmt.Sprintf("%s=$%d", cols.tenant, len(args))
	if pred.Mode == visibility.MatchAll {
		return tenant, args
	}

	var ors []string
	if len(pred.TeamIDs) > 0 && cols.team != "" {
		args = append(args, pred.TeamIDs)
		ors = append(ors, fmt.Sprintf("%s = ANY($%d)", cols.team, len(args)))
	}
	if len(pred.CreatedBy) > 0 && cols.createdBy != "" {
		args = append(args, pred.CreatedBy)
		ors = append(ors, fmt.Sprintf("%s = ANY($%d)", cols.createdBy, len(args)))
	}
	if pred.AssignedTo != "" && cols.assignedTo != "" {
		args = append(args, pred.AssignedTo)
		ors = append(ors, fmt.Sprintf("%s=$%d", cols.assignedTo, len(args)))
	}
	if len(ors) == 0 {
		return "FALSE", orig
	}
	return fmt.Sprintf("%s AND (%s)", tenant, strings.Join(ors, " OR ")), args
}

func pageClause(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}
