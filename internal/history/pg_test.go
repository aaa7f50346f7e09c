package history

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two concurrent inserts for the same key each compute CTE aggregates over
// a statement snapshot that excludes the other writer's row. If the
// conflict arm applied those snapshot aggregates (via EXCLUDED), the later
// writer would overwrite the earlier one's totals. The counters must be
// recomputed from the locked summary row instead, which serializes the two
// updates.
func TestInsertSQLConflictArmUsesLockedRow(t *testing.T) {
	_, arm, ok := strings.Cut(insertSQL, "ON CONFLICT (fingerprint, db_name, instance_id) DO UPDATE SET")
	require.True(t, ok, "summary upsert must resolve conflicts on the summary key")

	assert.Contains(t, arm, "total_executions   = s.total_executions + 1")
	assert.Contains(t, arm, "(s.avg_cost * s.total_executions + $5) / (s.total_executions + 1)")
	assert.Contains(t, arm, "least(s.min_cost, $5)")
	assert.Contains(t, arm, "greatest(s.max_cost, $5)")

	assert.NotContains(t, arm, "EXCLUDED.total_executions")
	assert.NotContains(t, arm, "EXCLUDED.avg_cost")
	assert.NotContains(t, arm, "EXCLUDED.min_cost")
	assert.NotContains(t, arm, "EXCLUDED.max_cost")
}

func TestInsertSQLIsSingleStatement(t *testing.T) {
	assert.NotContains(t, insertSQL, ";",
		"snapshot insert and summary upsert must stay one atomic statement")
}
