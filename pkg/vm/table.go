package vm

// TableEntry is one key/value pair of a table.
type TableEntry struct {
	Key   Value
	Value Value
}

// Table is the key/value store: an ordered list of pairs with key
// uniqueness enforced by value equality. Lookup and insert are linear
// scans, a deliberate memory-over-speed tradeoff for a small embedded
// footprint.
//
// Table itself is a plain data structure: it does not touch reference
// counts. Inside a VM, mutation goes through VM.tableSet so that object
// references held by keys and values stay counted.
type Table struct {
	Entries []TableEntry
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Find returns the index of the entry whose key compares equal to k, or -1.
// Integer and float keys resolve to the same entry when numerically equal.
func (t *Table) Find(k Value) int {
	for i := range t.Entries {
		if t.Entries[i].Key.Equals(k) {
			return i
		}
	}
	return -1
}

// Get returns the value stored under k, or nil for an absent key.
func (t *Table) Get(k Value) Value {
	if i := t.Find(k); i >= 0 {
		return t.Entries[i].Value
	}
	return Nil()
}

// GetStr is a convenience lookup with a string key.
func (t *Table) GetStr(k string) Value {
	return t.Get(Str(k))
}

// Set stores v under k. Setting an existing key overwrites its value;
// setting an absent key appends a new entry. Setting nil removes the entry
// outright rather than leaving a tombstone, so a table never grows from
// assignments that only ever store nil.
func (t *Table) Set(k, v Value) {
	i := t.Find(k)
	if v.IsNil() {
		if i >= 0 {
			t.removeAt(i)
		}
		return
	}
	if i >= 0 {
		t.Entries[i].Value = v
		return
	}
	t.Entries = append(t.Entries, TableEntry{Key: k, Value: v})
}

// SetStr is a convenience store with a string key.
func (t *Table) SetStr(k string, v Value) {
	t.Set(Str(k), v)
}

func (t *Table) removeAt(i int) {
	t.Entries = append(t.Entries[:i], t.Entries[i+1:]...)
}

// Len returns the sequence border: the largest n such that every integer
// key 1..n is present and n+1 is absent. Computed by probing, consistent
// with the linear-scan storage.
func (t *Table) Len() int64 {
	var n int64
	for !t.Get(Int(n + 1)).IsNil() {
		n++
	}
	return n
}
