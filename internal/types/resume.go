// Package types provides type definitions for structured data used throughout the resume-ranker system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Education represents a single education entry on a parsed resume.
type Education struct {
	School string `json:"school"`
	Degree string `json:"degree"`
	Year   string `json:"year,omitempty"`
}

// String renders the entry the way it is shown in prompts.
func (e Education) String() string {
	if e.Year != "" {
		return fmt.Sprintf("%s - %s (%s)", e.School, e.Degree, e.Year)
	}
	return fmt.Sprintf("%s - %s", e.School, e.Degree)
}

// Experience represents a single position on a parsed resume.
type Experience struct {
	Company string `json:"company,omitempty"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
	Years   string `json:"years,omitempty"`
}

// ResumeRecord is the structured output of the (external) resume parser.
// It is immutable once handed to a pipeline run.
type ResumeRecord struct {
	ID         string       `json:"resume_id" validate:"required"`
	Document   string       `json:"resume_text" validate:"required"`
	Skills     []string     `json:"skills,omitempty"`
	Education  []Education  `json:"education,omitempty"`
	Experience []Experience `json:"experience,omitempty"`
	Location   string       `json:"location,omitempty"`
}

// Validate checks the record's required fields.
func (r *ResumeRecord) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return &InputError{Field: "records[" + r.ID + "]", Message: err.Error()}
	}
	if strings.TrimSpace(r.ID) == "" {
		return &InputError{Field: "resume_id", Message: "must not be blank"}
	}
	if strings.TrimSpace(r.Document) == "" {
		return &InputError{Field: "records[" + r.ID + "].resume_text", Message: "must not be blank"}
	}
	return nil
}

// Clone returns a deep copy so callers can never mutate a stored record.
func (r ResumeRecord) Clone() ResumeRecord {
	out := r
	if r.Skills != nil {
		out.Skills = append([]string(nil), r.Skills...)
	}
	if r.Education != nil {
		out.Education = append([]Education(nil), r.Education...)
	}
	if r.Experience != nil {
		out.Experience = append([]Experience(nil), r.Experience...)
	}
	return out
}
