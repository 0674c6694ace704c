package memengine

import (
	"context"
	"fmt"

	"github.com/dolthub/go-mysql-server/sql"

	"github.com/max-hoffman/rto"
)

// Sampler draws systematic samples from Relations: rows are taken at evenly
// spaced positions so that repeated samples at the same limit agree.
type Sampler struct{}

var _ rto.AccessPathSampler = Sampler{}

func (Sampler) SampleAccessPath(ctx context.Context, pred rto.Predicate, limit int) ([]sql.Row, error) {
	rel, ok := pred.(*Relation)
	if !ok {
		return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("memengine cannot sample predicate %T", pred))
	}
	if limit <= 0 {
		return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("sample limit must be positive, got %d", limit))
	}

	n := len(rel.rows)
	k := min(n, limit)
	empty := make(sql.Row, rel.width)
	ret := make([]sql.Row, 0, k)
	for i := 0; i < k; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, ok := rel.bind(empty, i*n/k)
		if !ok {
			continue
		}
		ret = append(ret, row)
	}
	return ret, nil
}
