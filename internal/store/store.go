// Package store holds the request-scoped set of resume records a pipeline run operates on.
package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/resume-ranker/internal/types"
)

// Store is an immutable, ID-indexed collection of resume records.
type Store struct {
	records map[string]types.ResumeRecord
	ids     []string
}

// New validates records and builds a Store. Empty sets, blank IDs or documents and duplicate
// IDs are rejected with an *types.InputError.
func New(records []types.ResumeRecord) (*Store, error) {
	if len(records) == 0 {
		return nil, &types.InputError{Field: "records", Message: "record set is empty"}
	}

	s := &Store{
		records: make(map[string]types.ResumeRecord, len(records)),
		ids:     make([]string, 0, len(records)),
	}
	for i := range records {
		rec := records[i]
		if strings.TrimSpace(rec.ID) == "" {
			return nil, &types.InputError{
				Field:   fmt.Sprintf("records[%d].resume_id", i),
				Message: "must not be blank",
			}
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.records[rec.ID]; dup {
			return nil, &types.InputError{
				Field:   fmt.Sprintf("records[%d].resume_id", i),
				Message: fmt.Sprintf("duplicate candidate id %q", rec.ID),
			}
		}
		s.records[rec.ID] = rec.Clone()
		s.ids = append(s.ids, rec.ID)
	}
	sort.Strings(s.ids)
	return s, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return len(s.ids)
}

// Contains reports whether a record with id exists.
func (s *Store) Contains(id string) bool {
	_, ok := s.records[id]
	return ok
}

// Get returns a copy of the record with id.
func (s *Store) Get(id string) (types.ResumeRecord, bool) {
	rec, ok := s.records[id]
	if !ok {
		return types.ResumeRecord{}, false
	}
	return rec.Clone(), true
}

// IDs returns all candidate IDs in ascending order.
func (s *Store) IDs() []string {
	return append([]string(nil), s.ids...)
}

// Records returns copies of all records in ascending ID order.
func (s *Store) Records() []types.ResumeRecord {
	out := make([]types.ResumeRecord, len(s.ids))
	for i, id := range s.ids {
		out[i] = s.records[id].Clone()
	}
	return out
}
