package gset

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// GSet is a grow-only set of participant ids. Elements are never removed,
// so merging two replicas is a plain union.
type GSet struct {
	items map[string]struct{}
}

// NewGSet builds a set from the given ids. Blank ids are ignored.
func NewGSet(ids ...string) GSet {
	s := GSet{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// NormalizeID maps the different representations an id may arrive in
// ("42", " 42 ", 42) onto one comparable string.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return id
}

// Add inserts id and reports whether the set grew.
func (s *GSet) Add(id string) bool {
	id = NormalizeID(id)
	if id == "" {
		return false
	}
	if s.items == nil {
		s.items = make(map[string]struct{})
	}
	if _, ok := s.items[id]; ok {
		return false
	}
	s.items[id] = struct{}{}
	return true
}

// Has reports whether id is a member.
func (s GSet) Has(id string) bool {
	_, ok := s.items[NormalizeID(id)]
	return ok
}

// Len returns the number of distinct members.
func (s GSet) Len() int {
	return len(s.items)
}

// Slice returns the members in sorted order.
func (s GSet) Slice() []string {
	out := make([]string, 0, len(s.items))
	for id := range s.items {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s GSet) Clone() GSet {
	return NewGSet(s.Slice()...)
}

// Contains reports whether every member of other is in s.
func (s GSet) Contains(other GSet) bool {
	for id := range other.items {
		if _, ok := s.items[id]; !ok {
			return false
		}
	}
	return true
}

// Equal reports set equality.
func (s GSet) Equal(other GSet) bool {
	return s.Len() == other.Len() && s.Contains(other)
}

// Union returns the union of a and b. Neither input is modified.
func Union(a, b GSet) GSet {
	out := a.Clone()
	for id := range b.items {
		out.Add(id)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array of strings.
func (s GSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON accepts an array mixing strings and numbers, or null.
func (s *GSet) UnmarshalJSON(data []byte) error {
	*s = GSet{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("confirmed_by: %w", err)
	}
	for _, item := range raw {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			s.Add(str)
			continue
		}
		var num json.Number
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		if err := dec.Decode(&num); err != nil {
			return fmt.Errorf("confirmed_by: unsupported element %s", string(item))
		}
		s.Add(num.String())
	}
	return nil
}

// Value stores the set as a JSON array.
func (s GSet) Value() (driver.Value, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON array column.
func (s *GSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = GSet{}
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	default:
		return errors.New("confirmed_by: unsupported column type")
	}
}
