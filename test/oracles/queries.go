package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is an invariant phrased as a query that returns no rows while it holds.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_label_matches_payload",
			SQL:  `SELECT id, status_label, status->>'label' FROM inquiries WHERE status->>'label' IS DISTINCT FROM status_label`,
		},
		{
			Name: "O2_slot_bound",
			SQL: `SELECT id, status FROM inquiries
                  WHERE status_label = 'FreelancerRequested'
                    AND jsonb_array_length(COALESCE(status->'freelancerRequests', '[]'::jsonb)) NOT BETWEEN 1 AND 3`,
		},
		{
			Name: "O3_unique_slot_holder",
			SQL: `SELECT i.id, r->>'employeeId', COUNT(*)
                  FROM inquiries i
                  CROSS JOIN LATERAL jsonb_array_elements(
                      CASE WHEN i.status_label = 'FreelancerRequested' THEN i.status->'freelancerRequests' ELSE '[]'::jsonb END) AS r
                  GROUP BY i.id, r->>'employeeId' HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_owner_present",
			SQL: `SELECT id, status FROM inquiries
                  WHERE (status_label <> 'Unassigned' AND COALESCE(status->>'coordinatorId', '') = '')
                     OR (status_label IN ('FreelancerAssigned', 'InquiryResolved') AND COALESCE(status->>'freelancerId', '') = '')`,
		},
		{
			Name: "O5_version_matches_timeline",
			SQL: `SELECT i.id, i.version, e.latest
                  FROM inquiries i
                  LEFT JOIN (SELECT inquiry_id, MAX(version) AS latest FROM inquiry_events GROUP BY inquiry_id) e
                    ON e.inquiry_id = i.id
                  WHERE e.latest IS DISTINCT FROM i.version`,
		},
		{
			Name: "O6_timeline_contiguous",
			SQL: `SELECT inquiry_id, MIN(version), MAX(version), COUNT(*) FROM inquiry_events
                  GROUP BY inquiry_id HAVING MIN(version) <> 1 OR MAX(version) <> COUNT(*)`,
		},
		{
			Name: "O7_timeline_chain",
			SQL: `WITH chain AS (
                      SELECT inquiry_id, version, from_label, to_label,
                             LAG(to_label) OVER (PARTITION BY inquiry_id ORDER BY version) AS prev_to
                      FROM inquiry_events)
                  SELECT * FROM chain
                  WHERE (version = 1 AND (from_label IS NOT NULL OR to_label IS DISTINCT FROM 'Unassigned'))
                     OR (version > 1 AND from_label IS DISTINCT FROM prev_to)`,
		},
		{
			Name: "O8_legal_edges",
			SQL: `SELECT e.inquiry_id, e.version, e.from_label, e.to_label FROM inquiry_events e
                  WHERE NOT EXISTS (
                      SELECT 1 FROM (VALUES
                          (NULL::text, 'Unassigned'::text),
                          ('Unassigned', 'CoordinatorRequested'),
                          ('Unassigned', NULL),
                          ('CoordinatorRequested', 'Unassigned'),
                          ('CoordinatorRequested', 'CoordinatorRequested'),
                          ('CoordinatorRequested', 'CoordinatorAccepted'),
                          ('CoordinatorRequested', 'FreelancerRequested'),
                          ('CoordinatorAccepted', 'FreelancerRequested'),
                          ('FreelancerRequested', 'FreelancerRequested'),
                          ('FreelancerRequested', 'CoordinatorAccepted'),
                          ('FreelancerRequested', 'FreelancerAssigned'),
                          ('FreelancerAssigned', 'FreelancerAssigned'),
                          ('FreelancerAssigned', 'InquiryResolved')
                      ) AS legal(from_label, to_label)
                      WHERE legal.from_label IS NOT DISTINCT FROM e.from_label
                        AND legal.to_label IS NOT DISTINCT FROM e.to_label)`,
		},
		{
			Name: "O9_deletion_terminal",
			SQL: `SELECT e.inquiry_id, e.version FROM inquiry_events e
                  WHERE e.to_label IS NULL
                    AND (EXISTS (SELECT 1 FROM inquiries i WHERE i.id = e.inquiry_id)
                      OR EXISTS (SELECT 1 FROM inquiry_events l WHERE l.inquiry_id = e.inquiry_id AND l.version > e.version))`,
		},
		{
			Name: "O10_orphan_timeline",
			SQL: `SELECT DISTINCT e.inquiry_id FROM inquiry_events e
                  WHERE NOT EXISTS (SELECT 1 FROM inquiries i WHERE i.id = e.inquiry_id)
                    AND NOT EXISTS (SELECT 1 FROM inquiry_events d WHERE d.inquiry_id = e.inquiry_id AND d.to_label IS NULL)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
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
