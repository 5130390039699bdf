package tyrant

import "github.com/tyrantdb/tyrant/protocol"

// Ordering selects how search results are sorted: by which column, in which
// direction, comparing lexically or numerically. The zero value means no
// ordering (server default order).
type Ordering struct {
	Column     string
	Descending bool
	Numeric    bool
}

func (o Ordering) isZero() bool {
	return o.Column == ""
}

// orderType maps the ordering onto the protocol's setorder constant.
func (o Ordering) orderType() int {
	switch {
	case o.Numeric && o.Descending:
		return protocol.OrderNumDesc
	case o.Numeric:
		return protocol.OrderNumAsc
	case o.Descending:
		return protocol.OrderStrDesc
	default:
		return protocol.OrderStrAsc
	}
}
