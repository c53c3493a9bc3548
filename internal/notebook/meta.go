package notebook

import (
	"bytes"
	"fmt"
	"strings"
)

// Meta is an ordered key/value record as stored in metadata blocks. Keys may
// repeat; insertion order is preserved through a parse/encode round trip.
type Meta struct {
	entries []MetaEntry
}

// MetaEntry is a single key/value pair inside a metadata block.
type MetaEntry struct {
	Key   string
	Value string
}

// NewMeta returns an empty metadata record.
func NewMeta() *Meta {
	return &Meta{}
}

// ParseMeta decodes a metadata block payload of the form
// <KEY:VALUE><KEY:VALUE>... into an ordered record.
func ParseMeta(payload []byte) (*Meta, error) {
	m := NewMeta()
	i := 0
	for i < len(payload) {
		if payload[i] != '<' {
			return nil, fmt.Errorf("metadata: expected '<' at offset %d", i)
		}
		end := bytes.IndexByte(payload[i:], '>')
		if end < 0 {
			return nil, fmt.Errorf("metadata: unterminated entry at offset %d", i)
		}
		entry := payload[i+1 : i+end]
		sep := bytes.IndexByte(entry, ':')
		if sep < 0 {
			return nil, fmt.Errorf("metadata: entry %q has no separator", entry)
		}
		m.Add(string(entry[:sep]), string(entry[sep+1:]))
		i += end + 1
	}
	return m, nil
}

// Encode serializes the record back to its block payload form.
func (m *Meta) Encode() []byte {
	var buf bytes.Buffer
	for _, entry := range m.entries {
		buf.WriteByte('<')
		buf.WriteString(entry.Key)
		buf.WriteByte(':')
		buf.WriteString(entry.Value)
		buf.WriteByte('>')
	}
	return buf.Bytes()
}

// Add appends an entry, allowing duplicate keys.
func (m *Meta) Add(key, value string) {
	m.entries = append(m.entries, MetaEntry{Key: key, Value: value})
}

// Set replaces the first entry with the given key in place, or appends one.
func (m *Meta) Set(key, value string) {
	for i := range m.entries {
		if m.entries[i].Key == key {
			m.entries[i].Value = value
			return
		}
	}
	m.Add(key, value)
}

// Get returns the first value stored under key.
func (m *Meta) Get(key string) (string, bool) {
	for _, entry := range m.entries {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return "", false
}

// GetAll returns every value stored under key, in order.
func (m *Meta) GetAll(key string) []string {
	var values []string
	for _, entry := range m.entries {
		if entry.Key == key {
			values = append(values, entry.Value)
		}
	}
	return values
}

// Delete removes every entry with the given key.
func (m *Meta) Delete(key string) {
	kept := m.entries[:0]
	for _, entry := range m.entries {
		if entry.Key != key {
			kept = append(kept, entry)
		}
	}
	m.entries = kept
}

// Entries returns the entries in order. The slice is shared; treat it as
// read-only.
func (m *Meta) Entries() []MetaEntry {
	if m == nil {
		return nil
	}
	return m.entries
}

// Len reports the number of entries.
func (m *Meta) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Clone returns a deep copy.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return NewMeta()
	}
	clone := &Meta{entries: make([]MetaEntry, len(m.entries))}
	copy(clone.entries, m.entries)
	return clone
}

// Equal reports whether two records hold the same entries in the same order.
func (m *Meta) Equal(other *Meta) bool {
	if m.Len() != other.Len() {
		return false
	}
	for i, entry := range m.Entries() {
		if other.Entries()[i] != entry {
			return false
		}
	}
	return true
}

func (m *Meta) String() string {
	var sb strings.Builder
	for i, entry := range m.Entries() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s=%s", entry.Key, entry.Value)
	}
	return sb.String()
}
