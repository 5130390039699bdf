package tyrant

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/tyrantdb/tyrant/protocol"
)

// DefaultLimit bounds result sets when no explicit upper bound is given
// (All, open-ended slices).
const DefaultLimit = 1000

// ErrIndexOutOfRange is returned by Query.Get when the offset lies past the
// end of the result set.
var ErrIndexOutOfRange = errors.New("tyrant: query index out of range")

// queryRunner is what a Query needs from the client: one search round trip
// and one raw record fetch. Implemented by Client; tests substitute fakes.
type queryRunner interface {
	runSearch(ctx context.Context, req *protocol.SearchRequest) ([]string, error)
	fetchValue(ctx context.Context, key string) (string, error)
}

type sliceKey struct {
	offset int
	limit  int
}

const msNone = -1

// Query is a lazy search over a table database. Builder methods (Filter,
// Exclude, OrderBy, Columns, Union, Intersect, Minus) never mutate the
// receiver: each returns a fresh Query, so one base query can fan out into
// divergent refinements safely. Network I/O happens only on evaluation
// (Get, Slice, All, Count, ...), and evaluated slices are memoized per
// (offset, limit) within one Query.
//
// A Query is not safe for concurrent use; derive one per goroutine.
type Query struct {
	runner     queryRunner
	conditions []Cond
	ordering   Ordering
	columns    []string
	msType     int
	msConds    [][]Cond
	cache      map[sliceKey][]Record
	err        error // deferred builder error, surfaced on evaluation
}

func newQuery(runner queryRunner) *Query {
	return &Query{
		runner: runner,
		msType: msNone,
		cache:  make(map[sliceKey][]Record),
	}
}

// clone copies the builder state. The cache starts cold: sharing it would
// alias results across diverging refinements. OrderBy reattaches it in the
// one provably safe case.
func (q *Query) clone() *Query {
	clone := &Query{
		runner:     q.runner,
		conditions: append([]Cond(nil), q.conditions...),
		ordering:   q.ordering,
		msType:     q.msType,
		cache:      make(map[sliceKey][]Record),
		err:        q.err,
	}
	if q.columns != nil {
		clone.columns = append([]string(nil), q.columns...)
	}
	for _, group := range q.msConds {
		clone.msConds = append(clone.msConds, append([]Cond(nil), group...))
	}
	return clone
}

// Err returns the first builder error recorded on this query, if any. The
// same error is returned by every evaluation method.
func (q *Query) Err() error {
	return q.err
}

// Filter returns a query additionally constrained by the given conditions.
// All conditions attached to one query are conjunctive.
//
//	q.Filter(Where("stock__gte", 58), Where("stock__lte", 120))
func (q *Query) Filter(conds ...Cond) *Query {
	clone := q.clone()
	clone.conditions = append(clone.conditions, conds...)
	return clone
}

// Exclude is the antipode of Filter: every condition it adds is negated.
func (q *Query) Exclude(conds ...Cond) *Query {
	clone := q.clone()
	for _, c := range conds {
		clone.conditions = append(clone.conditions, c.Not())
	}
	return clone
}

// OrderBy returns a query ordered by the named column, lexically unless
// numeric is true. A "-" prefix on the column means descending. Re-deriving
// with the ordering already in effect keeps the parent's result cache (the
// key space is unaffected).
func (q *Query) OrderBy(column string, numeric bool) *Query {
	clone := q.clone()
	ordering := Ordering{Column: column, Numeric: numeric}
	if rest, found := strings.CutPrefix(column, "-"); found {
		ordering.Column = rest
		ordering.Descending = true
	}
	clone.ordering = ordering
	if q.ordering == ordering {
		clone.cache = q.cache
	}
	return clone
}

// Columns returns a query that fetches only the named columns per record.
// With no names, or with "*" among them, whole records are fetched. In
// projection mode results carry no primary keys.
func (q *Query) Columns(names ...string) *Query {
	clone := q.clone()
	clone.columns = nil
	for _, name := range names {
		if name == "*" {
			return clone
		}
	}
	if len(names) > 0 {
		clone.columns = append([]string(nil), names...)
	}
	return clone
}

// Union returns a query matching records matched by either query.
func (q *Query) Union(other *Query) *Query {
	return q.addMetaSearch(other, protocol.MSUnion)
}

// Intersect returns a query matching records matched by both queries.
func (q *Query) Intersect(other *Query) *Query {
	return q.addMetaSearch(other, protocol.MSIsect)
}

// Minus returns a query matching records matched by this query but not the
// other.
func (q *Query) Minus(other *Query) *Query {
	return q.addMetaSearch(other, protocol.MSDiff)
}

// addMetaSearch attaches other's condition set as an auxiliary branch. A
// single query cannot mix set operations; the violation is recorded and
// surfaced on evaluation.
func (q *Query) addMetaSearch(other *Query, msType int) *Query {
	clone := q.clone()
	if clone.msType != msNone && clone.msType != msType {
		clone.err = &protocol.ArgumentError{
			Message: "cannot mix union with intersect or minus in one query"}
		return clone
	}
	if other.err != nil && clone.err == nil {
		clone.err = other.err
	}
	clone.msType = msType
	clone.msConds = append(clone.msConds, append([]Cond(nil), other.conditions...))
	return clone
}

// buildRequest compiles the query into a wire-level search request.
func (q *Query) buildRequest(offset, limit int, out, count, hint bool) (*protocol.SearchRequest, error) {
	if q.err != nil {
		return nil, q.err
	}
	conditions, err := compileConditions(q.conditions)
	if err != nil {
		return nil, err
	}
	req := &protocol.SearchRequest{
		Conditions: conditions,
		Limit:      limit,
		Offset:     offset,
		MSType:     0,
		Columns:    q.columns,
		Out:        out,
		Count:      count,
		Hint:       hint,
	}
	if len(q.msConds) > 0 {
		req.MSType = q.msType
		for _, group := range q.msConds {
			compiled, err := compileConditions(group)
			if err != nil {
				return nil, err
			}
			req.MSConditions = append(req.MSConditions, compiled)
		}
	}
	if !q.ordering.isZero() {
		req.OrderColumn = q.ordering.Column
		req.OrderType = q.ordering.orderType()
	}
	return req, nil
}

// searchKeys runs the search without touching the cache.
func (q *Query) searchKeys(ctx context.Context, offset, limit int, out, count, hint bool) ([]string, error) {
	req, err := q.buildRequest(offset, limit, out, count, hint)
	if err != nil {
		return nil, err
	}
	return q.runner.runSearch(ctx, req)
}

// run evaluates one (offset, limit) window and materializes records,
// memoizing the result. In projection mode the search returns packed column
// payloads directly; otherwise it returns keys and each record is fetched.
func (q *Query) run(ctx context.Context, offset, limit int) ([]Record, error) {
	if q.err != nil {
		return nil, q.err
	}
	key := sliceKey{offset: offset, limit: limit}
	if cached, ok := q.cache[key]; ok {
		return cached, nil
	}

	results, err := q.searchKeys(ctx, offset, limit, false, false, false)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(results))
	if q.columns != nil {
		for _, payload := range results {
			records = append(records, Record{Columns: DecodeColumns(payload)})
		}
	} else {
		for _, k := range results {
			raw, err := q.runner.fetchValue(ctx, k)
			if err != nil {
				return nil, err
			}
			records = append(records, parseValue(k, raw))
		}
	}

	q.cache[key] = records
	return records, nil
}

// Get evaluates the query and returns the record at index i.
func (q *Query) Get(ctx context.Context, i int) (Record, error) {
	if i < 0 {
		return Record{}, &protocol.ArgumentError{Message: "negative query indices are not supported"}
	}
	records, err := q.run(ctx, i, 1)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrIndexOutOfRange
	}
	return records[0], nil
}

// Slice evaluates the query window [start, stop). Negative bounds are
// rejected; an empty window returns no records without any I/O.
func (q *Query) Slice(ctx context.Context, start, stop int) ([]Record, error) {
	if start < 0 || stop < 0 {
		return nil, &protocol.ArgumentError{Message: "negative query slice bounds are not supported"}
	}
	if stop <= start {
		return nil, nil
	}
	return q.run(ctx, start, stop-start)
}

// All evaluates the query with the default result bound.
func (q *Query) All(ctx context.Context) ([]Record, error) {
	return q.run(ctx, 0, DefaultLimit)
}

// Len returns the number of records within the default result bound. For
// the exact server-side count use Count.
func (q *Query) Len(ctx context.Context) (int, error) {
	records, err := q.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Count returns the number of matched records, counted server-side.
func (q *Query) Count(ctx context.Context) (int, error) {
	results, err := q.searchKeys(ctx, 0, 0, false, true, false)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, &protocol.ParseError{Message: "count search returned no value"}
	}
	n, err := strconv.Atoi(results[0])
	if err != nil {
		return 0, &protocol.ParseError{Message: "count search returned a non-numeric value", Err: err}
	}
	return n, nil
}

// Delete removes every matched record server-side. It returns no records:
// materializing them would race the deletion.
func (q *Query) Delete(ctx context.Context) error {
	_, err := q.searchKeys(ctx, 0, 0, true, false, false)
	return err
}

// Hint returns the server's query-plan explanation for this search.
func (q *Query) Hint(ctx context.Context) (string, error) {
	results, err := q.searchKeys(ctx, 0, 0, false, false, true)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", &protocol.ParseError{Message: "hint search returned no value"}
	}
	return results[len(results)-1], nil
}

// Contains reports whether key is among the matched records.
func (q *Query) Contains(ctx context.Context, key string) (bool, error) {
	keys, err := q.searchKeys(ctx, 0, 0, false, false, false)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}

// Values returns the distinct values of one column across the full result
// set, in first-seen order.
func (q *Query) Values(ctx context.Context, column string) ([]string, error) {
	records, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var values []string
	for _, rec := range records {
		v, ok := rec.Columns[column]
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values, nil
}

// Stat returns how often each column name occurs across the full result
// set.
func (q *Query) Stat(ctx context.Context) (map[string]int, error) {
	records, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, rec := range records {
		for name := range rec.Columns {
			counts[name]++
		}
	}
	return counts, nil
}
