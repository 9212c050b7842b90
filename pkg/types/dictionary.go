package types

// Dictionary is a deduplicated string pool backing a low-cardinality
// Utf8 column: each distinct string is interned once and rows reference
// it by a compact entry id instead of repeating the bytes.
//
// Grounded on crates/type/src/value/container/dictionary.rs
// (DictionaryContainer: a data vector of entry ids plus a parallel
// validity bitvec), adapted to the row-major Value domain used here
// instead of a columnar Arrow-style container.
type Dictionary struct {
	entries []string
	index   map[string]uint32
	ids     []uint32
	valid   []bool
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{index: make(map[string]uint32)}
}

// Len returns the number of rows pushed, defined or not.
func (d *Dictionary) Len() int { return len(d.ids) }

// Cardinality returns the number of distinct interned strings.
func (d *Dictionary) Cardinality() int { return len(d.entries) }

// Push interns v, reusing its entry id if v was seen before, and
// appends the id as the next row.
func (d *Dictionary) Push(v string) {
	id, ok := d.index[v]
	if !ok {
		id = uint32(len(d.entries))
		d.entries = append(d.entries, v)
		d.index[v] = id
	}
	d.ids = append(d.ids, id)
	d.valid = append(d.valid, true)
}

// PushUndefined appends a row with no value.
func (d *Dictionary) PushUndefined() {
	d.ids = append(d.ids, 0)
	d.valid = append(d.valid, false)
}

// Get returns the string at row i, or ok=false if i is undefined or
// out of range.
func (d *Dictionary) Get(i int) (string, bool) {
	if i < 0 || i >= len(d.ids) || !d.valid[i] {
		return "", false
	}
	return d.entries[d.ids[i]], true
}

// Clone returns a deep copy; mutating the clone never affects the
// original pool.
func (d *Dictionary) Clone() *Dictionary {
	entries := make([]string, len(d.entries))
	copy(entries, d.entries)
	index := make(map[string]uint32, len(d.index))
	for k, v := range d.index {
		index[k] = v
	}
	ids := make([]uint32, len(d.ids))
	copy(ids, d.ids)
	valid := make([]bool, len(d.valid))
	copy(valid, d.valid)
	return &Dictionary{entries: entries, index: index, ids: ids, valid: valid}
}

// DictionaryFromValues builds a dictionary from a column's decoded
// values, interning each defined Utf8 value in row order. Used by
// ColumnData.Dictionary to compact a low-cardinality string column on
// demand, e.g. before spilling it to a materialized view.
func DictionaryFromValues(values []Value) *Dictionary {
	d := NewDictionary()
	for _, v := range values {
		if !v.Defined {
			d.PushUndefined()
			continue
		}
		d.Push(v.Str)
	}
	return d
}
