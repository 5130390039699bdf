package tyrant

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tyrantdb/tyrant/protocol"
)

// Lookup is a named comparison operator used to build a condition from a
// column and an expression. Each lookup maps to one or more protocol
// operators depending on the expression's shape.
type Lookup int

const (
	LookupIs Lookup = iota // exact match (numeric or string)
	LookupContains
	LookupContainsAny
	LookupStartsWith
	LookupEndsWith
	LookupMatches // regular expression
	LookupSearch  // full-text compound expression
	LookupLike    // full-text phrase, or all tokens when given a list
	LookupLikeAny // full-text any-token
	LookupIn
	LookupBetween
	LookupGt
	LookupGte
	LookupLt
	LookupLte
	LookupExists
)

var lookupNames = map[string]Lookup{
	"is":           LookupIs,
	"contains":     LookupContains,
	"contains_any": LookupContainsAny,
	"startswith":   LookupStartsWith,
	"endswith":     LookupEndsWith,
	"matches":      LookupMatches,
	"search":       LookupSearch,
	"like":         LookupLike,
	"like_any":     LookupLikeAny,
	"in":           LookupIn,
	"between":      LookupBetween,
	"gt":           LookupGt,
	"gte":          LookupGte,
	"lt":           LookupLt,
	"lte":          LookupLte,
	"exists":       LookupExists,
}

func (l Lookup) String() string {
	for name, lookup := range lookupNames {
		if lookup == l {
			return name
		}
	}
	return fmt.Sprintf("Lookup(%d)", int(l))
}

func availableLookups() string {
	names := make([]string, 0, len(lookupNames))
	for name := range lookupNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// ParseLookup resolves a lookup name ("contains", "between", ...).
func ParseLookup(name string) (Lookup, error) {
	lookup, ok := lookupNames[name]
	if !ok {
		return 0, &protocol.ArgumentError{Message: fmt.Sprintf(
			"unknown lookup %q; available lookups are: %s", name, availableLookups())}
	}
	return lookup, nil
}

// Expression shapes a lookup definition can accept.
type exprShape int

const (
	shapeString exprShape = 1 << iota
	shapeNumber
	shapeStringList
	shapeNumberList
	shapeBool

	shapeAny = shapeString | shapeNumber | shapeStringList | shapeNumberList
)

// lookupDef is one candidate operator for a lookup. Definitions are tried
// in declared order; the first whose shape accepts the expression wins.
type lookupDef struct {
	op       int
	shapes   exprShape
	minElems int // list arity bounds; zero means unbounded
	maxElems int
	custom   bool   // substitute customValue for the expression
	value    string // the substituted value
}

var lookupDefs = map[Lookup][]lookupDef{
	LookupIs: {
		{op: protocol.QCNumEq, shapes: shapeNumber},
		{op: protocol.QCStrEq, shapes: shapeAny},
	},
	LookupContains: {
		{op: protocol.QCStrInc, shapes: shapeString},
		{op: protocol.QCStrAnd, shapes: shapeStringList},
	},
	LookupContainsAny: {
		{op: protocol.QCStrOr, shapes: shapeStringList},
	},
	LookupStartsWith: {
		{op: protocol.QCStrBW, shapes: shapeString},
	},
	LookupEndsWith: {
		{op: protocol.QCStrEW, shapes: shapeString},
	},
	LookupMatches: {
		{op: protocol.QCStrRX, shapes: shapeString},
	},
	LookupSearch: {
		{op: protocol.QCFTSEx, shapes: shapeString},
	},
	LookupLike: {
		{op: protocol.QCFTSPhr, shapes: shapeString},
		{op: protocol.QCFTSAnd, shapes: shapeStringList},
	},
	LookupLikeAny: {
		{op: protocol.QCFTSOr, shapes: shapeStringList},
	},
	LookupIn: {
		{op: protocol.QCStrOrEq, shapes: shapeStringList},
		{op: protocol.QCNumOrEq, shapes: shapeNumberList},
	},
	LookupBetween: {
		{op: protocol.QCNumBT, shapes: shapeNumberList, minElems: 2, maxElems: 2},
	},
	LookupGt:  {{op: protocol.QCNumGT, shapes: shapeNumber}},
	LookupGte: {{op: protocol.QCNumGE, shapes: shapeNumber}},
	LookupLt:  {{op: protocol.QCNumLT, shapes: shapeNumber}},
	LookupLte: {{op: protocol.QCNumLE, shapes: shapeNumber}},
	LookupExists: {
		// Matching against the empty regex is the sentinel for "column
		// exists"; Exists(false) negates it externally instead of using a
		// separate operator.
		{op: protocol.QCStrRX, shapes: shapeBool, custom: true, value: ""},
	},
}

// Cond is one query condition before compilation: a column, a lookup and a
// typed expression. Build one with C or Where, negate with Not.
type Cond struct {
	Column string
	Lookup Lookup
	Expr   any
	negate bool
}

// C builds a condition from a column, a lookup and an expression.
//
//	C("stock", LookupBetween, []int{58, 120})
//	C("color", LookupIs, "red")
func C(column string, lookup Lookup, expr any) Cond {
	return Cond{Column: column, Lookup: lookup, Expr: expr}
}

// Where builds a condition from a "column__lookup" specifier, the calling
// convention of the double-underscore query style. A bare column name means
// exact match.
//
//	Where("stock__gte", 58)
//	Where("name", "John")
//
// An unknown lookup name surfaces when the condition is compiled, i.e. when
// the query is evaluated.
func Where(spec string, expr any) Cond {
	column, name, found := strings.Cut(spec, "__")
	if !found {
		return Cond{Column: spec, Lookup: LookupIs, Expr: expr}
	}
	lookup, err := ParseLookup(name)
	if err != nil {
		return Cond{Column: column, Lookup: badLookup, Expr: name}
	}
	return Cond{Column: column, Lookup: lookup, Expr: expr}
}

// badLookup marks a Where specifier whose lookup name did not parse; the
// stored Expr is the offending name. Compilation reports it.
const badLookup Lookup = -1

// Not returns the condition negated. Double negation cancels.
func (c Cond) Not() Cond {
	c.negate = !c.negate
	return c
}

// classified is the shape analysis of one expression.
type classified struct {
	shape exprShape
	wire  string   // scalar wire form
	elems []string // list wire forms
	b     bool     // boolean value
}

func formatNumber(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	return "", false
}

func classify(expr any) (classified, error) {
	switch v := expr.(type) {
	case nil:
		return classified{}, &protocol.ArgumentError{Message: "condition expression must not be nil"}
	case string:
		return classified{shape: shapeString, wire: v}, nil
	case bool:
		return classified{shape: shapeBool, b: v}, nil
	case []string:
		return classified{shape: shapeStringList, elems: v}, nil
	case []int:
		elems := make([]string, len(v))
		for i, n := range v {
			elems[i] = strconv.Itoa(n)
		}
		return classified{shape: shapeNumberList, elems: elems}, nil
	case []int64:
		elems := make([]string, len(v))
		for i, n := range v {
			elems[i] = strconv.FormatInt(n, 10)
		}
		return classified{shape: shapeNumberList, elems: elems}, nil
	case []float64:
		elems := make([]string, len(v))
		for i, n := range v {
			elems[i] = strconv.FormatFloat(n, 'f', -1, 64)
		}
		return classified{shape: shapeNumberList, elems: elems}, nil
	case []any:
		elems := make([]string, len(v))
		numeric := true
		for i, e := range v {
			if s, ok := e.(string); ok {
				elems[i] = s
				numeric = false
				continue
			}
			s, ok := formatNumber(e)
			if !ok {
				return classified{}, &protocol.ArgumentError{Message: fmt.Sprintf(
					"unsupported list element type %T in condition expression", e)}
			}
			elems[i] = s
		}
		shape := shapeNumberList
		if !numeric {
			shape = shapeStringList
		}
		return classified{shape: shape, elems: elems}, nil
	}
	if s, ok := formatNumber(expr); ok {
		return classified{shape: shapeNumber, wire: s}, nil
	}
	return classified{}, &protocol.ArgumentError{Message: fmt.Sprintf(
		"unsupported condition expression type %T", expr)}
}

// compile turns the condition into its wire triple: column, operator code
// with modifier bits, canonical expression string. List expressions fold
// into one comma-separated token string.
func (c Cond) compile() (protocol.Condition, error) {
	if c.Lookup == badLookup {
		name, _ := c.Expr.(string)
		return protocol.Condition{}, &protocol.ArgumentError{Message: fmt.Sprintf(
			"unknown lookup %q; available lookups are: %s", name, availableLookups())}
	}
	defs, ok := lookupDefs[c.Lookup]
	if !ok {
		return protocol.Condition{}, &protocol.ArgumentError{Message: fmt.Sprintf(
			"unknown lookup %v; available lookups are: %s", c.Lookup, availableLookups())}
	}

	cl, err := classify(c.Expr)
	if err != nil {
		return protocol.Condition{}, err
	}

	for _, def := range defs {
		if def.shapes&cl.shape == 0 {
			continue
		}
		if def.minElems > 0 && len(cl.elems) < def.minElems ||
			def.maxElems > 0 && len(cl.elems) > def.maxElems {
			return protocol.Condition{}, &protocol.ArgumentError{Message: fmt.Sprintf(
				"lookup %q requires %d element(s), got %v", c.Lookup, def.minElems, c.Expr)}
		}

		negate := c.negate
		wire := cl.wire
		switch {
		case def.custom:
			wire = def.value
			// Exists(false) is "negate of exists(true)".
			negate = negate != !cl.b
		case cl.shape == shapeStringList || cl.shape == shapeNumberList:
			wire = strings.Join(cl.elems, ", ")
		}

		op := def.op
		if negate {
			op |= protocol.QCNegate
		}
		return protocol.Condition{Column: c.Column, Op: op, Expr: wire}, nil
	}

	return protocol.Condition{}, &protocol.ArgumentError{Message: fmt.Sprintf(
		"no definition of lookup %q accepts value %v", c.Lookup, c.Expr)}
}

func compileConditions(conds []Cond) ([]protocol.Condition, error) {
	compiled := make([]protocol.Condition, len(conds))
	for i, c := range conds {
		pc, err := c.compile()
		if err != nil {
			return nil, err
		}
		compiled[i] = pc
	}
	return compiled, nil
}
