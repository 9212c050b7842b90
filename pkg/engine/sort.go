package engine

import (
	"container/heap"
	"context"
	"sort"

	"github.com/reifydb/reifydb/pkg/types"
)

// SortKey names one column to order by and its direction; NaN and
// undefined values order last regardless of direction (spec.md §4.6
// "Sort").
type SortKey struct {
	Column string
	Desc   bool
}

// CompareValues orders two values, undefined and NaN sorting last
// (spec.md §9's undefined-ordering resolution). Exported so pkg/flow's
// Filter/Join/Aggregate operators compare values the same way
// pkg/engine's batch operators do.
func CompareValues(a, b types.Value) int { return compareValues(a, b) }

func compareValues(a, b types.Value) int {
	if !a.Defined && !b.Defined {
		return 0
	}
	if !a.Defined {
		return 1 // undefined sorts last
	}
	if !b.Defined {
		return -1
	}
	switch a.Type {
	case types.Float4, types.Float8:
		an, bn := isNaN(a.F64), isNaN(b.F64)
		if an && bn {
			return 0
		}
		if an {
			return 1 // NaN sorts last
		}
		if bn {
			return -1
		}
		if a.F64 < b.F64 {
			return -1
		}
		if a.F64 > b.F64 {
			return 1
		}
		return 0
	case types.Utf8:
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		default:
			return 0
		}
	case types.Bool:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	default:
		ai, bi := asI64(a), asI64(b)
		if isUnsignedType(a.Type) {
			au, bu := a.U64, b.U64
			switch {
			case au < bu:
				return -1
			case au > bu:
				return 1
			default:
				return 0
			}
		}
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
}

func isNaN(f float64) bool { return f != f }

// rowCompare orders two rows by keys in order, honoring direction.
func rowCompare(keys []SortKey, a, b types.Row) int {
	for _, k := range keys {
		av, _ := a.Get(k.Column)
		bv, _ := b.Get(k.Column)
		c := compareValues(av, bv)
		last := func(v types.Value) bool {
			return !v.Defined || ((v.Type == types.Float4 || v.Type == types.Float8) && isNaN(v.F64))
		}
		if k.Desc && !last(av) && !last(bv) {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// Sort performs a total, stable order over all of Input's rows by Keys.
// It materializes its entire input, matching the volcano "blocking"
// operator shape spec.md's Aggregate and Sort share.
type Sort struct {
	Input Operator
	Keys  []SortKey

	rows     []types.Row
	rowNums  []uint64
	produced bool
}

func (s *Sort) Initialize(ctx context.Context, ec *Context) error {
	return s.Input.Initialize(ctx, ec)
}

func (s *Sort) Headers() types.Schema { return s.Input.Headers() }

func (s *Sort) drain(ctx context.Context, ec *Context) error {
	for {
		batch, err := s.Input.Next(ctx, ec)
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}
		for i := 0; i < batch.Rows(); i++ {
			s.rows = append(s.rows, batch.Row(i))
			s.rowNums = append(s.rowNums, batch.RowNumbers[i])
		}
	}
}

func (s *Sort) Next(ctx context.Context, ec *Context) (*Columns, error) {
	if s.produced {
		return nil, nil
	}
	if err := s.drain(ctx, ec); err != nil {
		return nil, err
	}
	idx := make([]int, len(s.rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return rowCompare(s.Keys, s.rows[idx[i]], s.rows[idx[j]]) < 0
	})
	out := NewColumns(s.Headers())
	for _, i := range idx {
		out.AppendRow(s.rowNums[i], s.rows[i].Values)
	}
	s.produced = true
	if out.Rows() == 0 {
		return nil, nil
	}
	return out, nil
}

// topKHeap is a max-heap (by the sort-key direction) of at most K
// survivors; the greatest element is evicted on overflow (spec.md §4.6
// "TopK").
type topKHeap struct {
	keys    []SortKey
	rows    []types.Row
	rowNums []uint64
}

func (h *topKHeap) Len() int { return len(h.rows) }
func (h *topKHeap) Less(i, j int) bool {
	// heap.Interface's Less defines the root (index 0) as the minimum;
	// we want the root to be the greatest survivor so it is evicted
	// first, so invert.
	return rowCompare(h.keys, h.rows[i], h.rows[j]) > 0
}
func (h *topKHeap) Swap(i, j int) {
	h.rows[i], h.rows[j] = h.rows[j], h.rows[i]
	h.rowNums[i], h.rowNums[j] = h.rowNums[j], h.rowNums[i]
}
func (h *topKHeap) Push(x any) {
	e := x.(topKEntry)
	h.rows = append(h.rows, e.row)
	h.rowNums = append(h.rowNums, e.rowNum)
}
func (h *topKHeap) Pop() any {
	n := len(h.rows)
	row, rowNum := h.rows[n-1], h.rowNums[n-1]
	h.rows = h.rows[:n-1]
	h.rowNums = h.rowNums[:n-1]
	return topKEntry{row: row, rowNum: rowNum}
}

type topKEntry struct {
	row    types.Row
	rowNum uint64
}

// TopK maintains a bounded max-heap of size K ordered by Keys; on
// overflow it evicts the greatest, then performs a final stable sort
// over the K survivors on EOF (spec.md §4.6).
type TopK struct {
	Input Operator
	Keys  []SortKey
	K     int

	h        *topKHeap
	produced bool
}

func (t *TopK) Initialize(ctx context.Context, ec *Context) error {
	return t.Input.Initialize(ctx, ec)
}

func (t *TopK) Headers() types.Schema { return t.Input.Headers() }

func (t *TopK) Next(ctx context.Context, ec *Context) (*Columns, error) {
	if t.produced {
		return nil, nil
	}
	t.h = &topKHeap{keys: t.Keys}
	if t.K > 0 {
		for {
			batch, err := t.Input.Next(ctx, ec)
			if err != nil {
				return nil, err
			}
			if batch == nil {
				break
			}
			for i := 0; i < batch.Rows(); i++ {
				entry := topKEntry{row: batch.Row(i), rowNum: batch.RowNumbers[i]}
				if t.h.Len() < t.K {
					heap.Push(t.h, entry)
				} else if rowCompare(t.Keys, entry.row, t.h.rows[0]) < 0 {
					heap.Pop(t.h)
					heap.Push(t.h, entry)
				}
			}
		}
	}
	t.produced = true

	survivors := make([]topKEntry, t.h.Len())
	for i := range survivors {
		survivors[i] = topKEntry{row: t.h.rows[i], rowNum: t.h.rowNums[i]}
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return rowCompare(t.Keys, survivors[i].row, survivors[j].row) < 0
	})

	if len(survivors) == 0 {
		return nil, nil
	}
	out := NewColumns(t.Headers())
	for _, e := range survivors {
		out.AppendRow(e.rowNum, e.row.Values)
	}
	return out, nil
}
