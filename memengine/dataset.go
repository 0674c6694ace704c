package memengine

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/expression"

	"github.com/max-hoffman/rto"
)

// Dataset is a join workload: the relations to order and the constraints
// filtering their join.
type Dataset struct {
	Variables   []string
	Relations   []*Relation
	Constraints []sql.Expression
}

// Predicates returns the relations as predicates, in declaration order.
func (d *Dataset) Predicates() []rto.Predicate {
	preds := make([]rto.Predicate, len(d.Relations))
	for i, r := range d.Relations {
		preds[i] = r
	}
	return preds
}

// Predicate returns the relation with the given name. It serves as an
// rto.PredicateResolver for plans over the dataset's tables.
func (d *Dataset) Predicate(name string) (rto.Predicate, bool) {
	for _, r := range d.Relations {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

type datasetJSON struct {
	Variables   []string         `json:"variables"`
	Relations   []relationJSON   `json:"relations"`
	Constraints []constraintJSON `json:"constraints"`
}

type relationJSON struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// constraintJSON compares the variable Left with either the variable Right or
// the constant Value.
type constraintJSON struct {
	Op    string      `json:"op"`
	Left  string      `json:"left"`
	Right string      `json:"right,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// LoadDataset reads a JSON workload of the form
//
//	{
//	  "variables": ["x", "y"],
//	  "relations": [{"name": "R", "columns": ["x", "y"], "rows": [[1, 2]]}],
//	  "constraints": [{"op": "<", "left": "x", "right": "y"}]
//	}
//
// Variables hold either integers or strings. Relations are numbered from 1 in
// declaration order.
func LoadDataset(r io.Reader) (*Dataset, error) {
	var raw datasetJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, rto.ErrInvalidArgument.Wrap(err, "malformed dataset")
	}
	if len(raw.Variables) == 0 {
		return nil, rto.ErrInvalidArgument.New("dataset declares no variables")
	}

	varIdx := make(map[string]int, len(raw.Variables))
	for i, name := range raw.Variables {
		if _, ok := varIdx[name]; ok {
			return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("duplicate variable %q", name))
		}
		varIdx[name] = i
	}

	// normalize values and infer the type of every variable
	kinds := make([]valueKind, len(raw.Variables))
	relRows := make([][]sql.Row, len(raw.Relations))
	relVars := make([][]int, len(raw.Relations))
	for i, rel := range raw.Relations {
		for _, col := range rel.Columns {
			v, ok := varIdx[col]
			if !ok {
				return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("relation %s uses undeclared variable %q", rel.Name, col))
			}
			relVars[i] = append(relVars[i], v)
		}
		for _, values := range rel.Rows {
			if len(values) != len(rel.Columns) {
				return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("relation %s row %v has %d values, want %d", rel.Name, values, len(values), len(rel.Columns)))
			}
			row := make(sql.Row, len(values))
			for j, x := range values {
				val, kind, err := normalize(x)
				if err != nil {
					return nil, rto.ErrInvalidArgument.Wrap(err, fmt.Sprintf("relation %s", rel.Name))
				}
				v := relVars[i][j]
				if kinds[v] != unknownKind && kinds[v] != kind {
					return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("variable %q mixes integer and string values", raw.Variables[v]))
				}
				kinds[v] = kind
				row[j] = val
			}
			relRows[i] = append(relRows[i], row)
		}
	}
	types := make([]sql.Type, len(kinds))
	for i, k := range kinds {
		types[i] = k.sqlType()
	}

	d := &Dataset{Variables: raw.Variables}
	for i, rel := range raw.Relations {
		colTypes := make([]sql.Type, len(relVars[i]))
		for j, v := range relVars[i] {
			colTypes[j] = types[v]
		}
		r, err := NewRelation(i+1, rel.Name, len(raw.Variables), relVars[i], colTypes, relRows[i])
		if err != nil {
			return nil, err
		}
		d.Relations = append(d.Relations, r)
	}

	for _, c := range raw.Constraints {
		expr, err := c.build(varIdx, raw.Variables, types)
		if err != nil {
			return nil, err
		}
		d.Constraints = append(d.Constraints, expr)
	}
	return d, nil
}

func (c constraintJSON) build(varIdx map[string]int, names []string, types []sql.Type) (sql.Expression, error) {
	l, ok := varIdx[c.Left]
	if !ok {
		return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("constraint uses undeclared variable %q", c.Left))
	}
	left := expression.NewGetFieldWithTable(l, types[l], "", names[l], true)

	var right sql.Expression
	switch {
	case c.Right != "" && c.Value != nil:
		return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("constraint on %q has both a variable and a value", c.Left))
	case c.Right != "":
		r, ok := varIdx[c.Right]
		if !ok {
			return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("constraint uses undeclared variable %q", c.Right))
		}
		right = expression.NewGetFieldWithTable(r, types[r], "", names[r], true)
	case c.Value != nil:
		val, kind, err := normalize(c.Value)
		if err != nil {
			return nil, rto.ErrInvalidArgument.Wrap(err, fmt.Sprintf("constraint on %q", c.Left))
		}
		right = expression.NewLiteral(val, kind.sqlType())
	default:
		return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("constraint on %q has no right side", c.Left))
	}

	switch c.Op {
	case "=":
		return expression.NewEquals(left, right), nil
	case "!=":
		return expression.NewNot(expression.NewEquals(left, right)), nil
	case "<":
		return expression.NewLessThan(left, right), nil
	case "<=":
		return expression.NewLessThanOrEqual(left, right), nil
	case ">":
		return expression.NewGreaterThan(left, right), nil
	case ">=":
		return expression.NewGreaterThanOrEqual(left, right), nil
	default:
		return nil, rto.ErrInvalidArgument.New(fmt.Sprintf("unknown constraint operator %q", c.Op))
	}
}

type valueKind uint8

const (
	unknownKind valueKind = iota
	intKind
	textKind
)

// sqlType returns the column type of a variable. Variables without values
// default to integers.
func (k valueKind) sqlType() sql.Type {
	if k == textKind {
		return sql.Text
	}
	return sql.Int64
}

// normalize converts a decoded JSON value to the value stored in rows.
func normalize(v interface{}) (interface{}, valueKind, error) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 || x < math.MinInt64 {
			return nil, unknownKind, fmt.Errorf("value %v is not an integer", x)
		}
		return int64(x), intKind, nil
	case string:
		return x, textKind, nil
	default:
		return nil, unknownKind, fmt.Errorf("unsupported value %v of type %T", v, v)
	}
}
