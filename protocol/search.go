package protocol

import (
	"context"
	"strconv"
	"strings"
)

// Condition is one compiled search condition: a column, an operator code
// (one of the QC constants, optionally ORed with QCNegate/QCNoIdx) and the
// canonical wire expression.
type Condition struct {
	Column string
	Op     int
	Expr   string
}

// SearchRequest describes one table search. It serializes into the argument
// list of a misc "search" call; every argument is a NUL-joined word
// sequence.
type SearchRequest struct {
	Conditions []Condition

	// Limit bounds the result set; zero means no setlimit argument (server
	// default: everything). Offset requires a positive Limit.
	Limit  int
	Offset int

	// OrderColumn selects result ordering; OrderType is one of the Order
	// constants. Empty OrderColumn leaves the server's default order.
	OrderColumn string
	OrderType   int

	// MSConditions are auxiliary condition groups combined with the primary
	// conditions by the MSType set operation.
	MSType       int
	MSConditions [][]Condition

	// Columns projects the result to the named columns instead of keys.
	Columns []string

	Out   bool // delete matched records instead of returning them
	Count bool // return the match count instead of keys
	Hint  bool // append the server's query-plan explanation

	Opts int // misc option bits (MiscNoUpdateLog)
}

const condSep = "\x00"

func appendCond(args []string, cond Condition) []string {
	return append(args, "addcond"+condSep+cond.Column+condSep+
		strconv.Itoa(cond.Op)+condSep+cond.Expr)
}

// Args serializes the request into misc "search" arguments. Offset without
// limit is a protocol violation and fails before any I/O.
func (r *SearchRequest) Args() ([]string, error) {
	if r.Offset < 0 || r.Limit < 0 {
		return nil, &ArgumentError{Message: "search limit and offset must not be negative"}
	}
	if r.Offset > 0 && r.Limit == 0 {
		return nil, &ArgumentError{Message: "search offset requires a limit"}
	}

	args := make([]string, 0, len(r.Conditions)+4)
	for _, cond := range r.Conditions {
		args = appendCond(args, cond)
	}

	if len(r.MSConditions) > 0 {
		args = append(args, "mstype"+condSep+strconv.Itoa(r.MSType))
		for _, group := range r.MSConditions {
			args = append(args, "next")
			for _, cond := range group {
				args = appendCond(args, cond)
			}
		}
	}

	if len(r.Columns) > 0 {
		args = append(args, "get"+condSep+strings.Join(r.Columns, condSep))
	}

	if r.OrderColumn != "" {
		args = append(args, "setorder"+condSep+r.OrderColumn+condSep+
			strconv.Itoa(r.OrderType))
	}

	if r.Limit > 0 {
		args = append(args, "setlimit"+condSep+strconv.Itoa(r.Limit)+condSep+
			strconv.Itoa(r.Offset))
	}

	if r.Out {
		args = append(args, "out")
	}
	if r.Count {
		args = append(args, "count")
	}
	if r.Hint {
		args = append(args, "hint")
	}

	return args, nil
}

// Search runs one table search and returns the raw result list: matched
// keys, or projected column payloads, or a single count, depending on the
// request flags.
func (c *Conn) Search(ctx context.Context, req *SearchRequest) ([]string, error) {
	args, err := req.Args()
	if err != nil {
		return nil, err
	}
	return c.Misc(ctx, "search", args, req.Opts)
}
