package plan

import (
	"context"

	"github.com/aviciot/queryscope/internal/qerror"
)

// Explainer obtains raw EXPLAIN (FORMAT JSON) output for an already-validated
// statement without materializing any result rows. Implementations must clean
// up any session-scoped plan storage on every exit path.
type Explainer interface {
	Explain(ctx context.Context, sql string) ([]byte, error)
}

// Collect runs the engine explain mechanism and parses the result into a
// normalized tree.
func Collect(ctx context.Context, e Explainer, sql string) (*Tree, error) {
	raw, err := e.Explain(ctx, sql)
	if err != nil {
		if _, ok := qerror.KindOf(err); ok {
			return nil, err
		}
		return nil, qerror.Wrap(qerror.CollectorError, err,
			"explain failed", "verify the statement is explainable and the session has EXPLAIN privileges")
	}
	return Parse(raw)
}
