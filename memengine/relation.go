package memengine

import (
	"fmt"

	"github.com/dolthub/go-mysql-server/memory"
	"github.com/dolthub/go-mysql-server/sql"
	boom "github.com/tylertreat/BoomFilters"

	"github.com/max-hoffman/rto"
)

// Relation is an in-memory access path. Each column binds one variable of the
// binding rows; a variable may appear in several columns, in which case the
// columns must agree.
type Relation struct {
	id    int
	name  string
	width int
	vars  []int
	rows  []sql.Row

	// index maps a column value to the positions of the rows holding it.
	index []map[interface{}][]int

	// sketches estimate the range count of a lookup on a bound column.
	sketches []*boom.CountMinSketch

	table *memory.Table
}

var _ rto.Predicate = (*Relation)(nil)
var _ rto.TableSource = (*Relation)(nil)

// NewRelation returns a relation over binding rows of the given width. vars
// names the binding column of every relation column, and types their sql
// type.
func NewRelation(id int, name string, width int, vars []int, types []sql.Type, rows []sql.Row) (*Relation, error) {
	if len(vars) == 0 {
		return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("relation %s has no columns", name))
	}
	if len(types) != len(vars) {
		return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("relation %s has %d columns but %d types", name, len(vars), len(types)))
	}
	for _, v := range vars {
		if v < 0 || v >= width {
			return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("relation %s binds variable %d outside [0,%d)", name, v, width))
		}
	}

	r := &Relation{
		id:       id,
		name:     name,
		width:    width,
		vars:     vars,
		index:    make([]map[interface{}][]int, len(vars)),
		sketches: make([]*boom.CountMinSketch, len(vars)),
	}
	for i := range vars {
		r.index[i] = make(map[interface{}][]int)
		r.sketches[i] = boom.NewCountMinSketch(0.001, 0.01)
	}

	schema := make(sql.Schema, len(vars))
	for i, typ := range types {
		schema[i] = &sql.Column{
			Name:     fmt.Sprintf("c%d", i),
			Type:     typ,
			Source:   name,
			Nullable: false,
		}
	}
	r.table = memory.NewTable(name, sql.NewPrimaryKeySchema(schema), nil)

	ctx := sql.NewEmptyContext()
	inserter := r.table.Inserter(ctx)
	for _, row := range rows {
		if len(row) != len(vars) {
			return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("relation %s row %v has %d values, want %d", name, row, len(row), len(vars)))
		}
		pos := len(r.rows)
		for i, val := range row {
			if val == nil {
				return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("relation %s row %v has a null value", name, row))
			}
			r.index[i][val] = append(r.index[i][val], pos)
			r.sketches[i].Add(sketchKey(val))
		}
		r.rows = append(r.rows, row)
		if err := inserter.Insert(ctx, row); err != nil {
			return nil, err
		}
	}
	if err := inserter.Close(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Relation) ID() int {
	return r.id
}

func (r *Relation) Name() string {
	return r.name
}

func (r *Relation) Vars() []int {
	return append([]int(nil), r.vars...)
}

// RangeCount is the exact number of tuples in the relation.
func (r *Relation) RangeCount() int64 {
	return int64(len(r.rows))
}

// Table returns the go-mysql-server table holding the tuples.
func (r *Relation) Table() sql.Table {
	return r.table
}

// Width is the number of columns of the binding rows the relation reads and
// produces.
func (r *Relation) Width() int {
	return r.width
}

func (r *Relation) String() string {
	return fmt.Sprintf("%s#%d%v", r.name, r.id, r.vars)
}

// lookup returns the candidate rows for the binding b, and the estimated
// range count of the access. The first column whose variable is bound in b
// drives the lookup; without bindings every row is a candidate.
func (r *Relation) lookup(b sql.Row) ([]int, int64) {
	for i, v := range r.vars {
		if v >= len(b) || b[v] == nil {
			continue
		}
		return r.index[i][b[v]], int64(r.sketches[i].Count(sketchKey(b[v])))
	}
	all := make([]int, len(r.rows))
	for i := range all {
		all[i] = i
	}
	return all, int64(len(r.rows))
}

// bind returns b extended with the values of row pos, or false if the row
// disagrees with a binding of b or with itself.
func (r *Relation) bind(b sql.Row, pos int) (sql.Row, bool) {
	out := make(sql.Row, r.width)
	copy(out, b)
	for i, v := range r.vars {
		val := r.rows[pos][i]
		if out[v] != nil && out[v] != val {
			return nil, false
		}
		out[v] = val
	}
	return out, true
}

func sketchKey(v interface{}) []byte {
	return []byte(fmt.Sprintf("%T:%v", v, v))
}
