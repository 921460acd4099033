// Package oracles holds SQL invariants that must return zero rows at any
// point during a stress run.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_unique_active_application",
			SQL: `SELECT requirement_id, applicant_id, COUNT(*) FROM requirement_applications
                  WHERE status IN ('PENDING','APPROVED')
                  GROUP BY requirement_id, applicant_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_approval_advances_requirement",
			SQL: `SELECT a.id, a.requirement_id FROM requirement_applications a
                  JOIN requirements r ON r.id = a.requirement_id
                  WHERE a.status = 'APPROVED' AND r.status = 'CREATED'`,
		},
		{
			Name: "O3_no_self_application",
			SQL: `SELECT a.id FROM requirement_applications a
                  JOIN requirements r ON r.id = a.requirement_id
                  WHERE a.applicant_id = r.created_by`,
		},
		{
			Name: "O4_unreachable_status",
			SQL:  `SELECT id FROM requirements WHERE status = 'CONFIRMING'`,
		},
		{
			Name: "O5_timestamps_monotonic",
			SQL: `SELECT id FROM requirements WHERE updated_at < created_at
                  UNION ALL
                  SELECT id FROM requirement_applications WHERE updated_at < created_at`,
		},
		{
			Name: "O6_outbox_not_stale",
			SQL: `SELECT id FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O7_event_per_application",
			SQL: `SELECT a.id FROM requirement_applications a
                  WHERE NOT EXISTS (
                      SELECT 1 FROM outbox o
                      WHERE o.topic = 'application.created' AND o.payload->>'application_id' = a.id::text)`,
		},
	}
}

// Run executes every oracle and returns the first failing one with a sample
// row, or an empty name when all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
