// Package listing derives the filtered and sorted candidate table from a
// fully loaded collection. Nothing is cached: Rows recomputes from the
// source on every call.
package listing

import (
	"fmt"
	"slices"
	"strings"

	"candidate-service/internal/candidate"

	"golang.org/x/text/cases"
)

// Bucket is a work-experience range in whole years.
type Bucket string

const (
	BucketAny    Bucket = ""
	BucketJunior Bucket = "0-2"
	BucketMid    Bucket = "3-5"
	BucketSenior Bucket = "5+"
)

func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(strings.TrimSpace(s)); b {
	case BucketAny, BucketJunior, BucketMid, BucketSenior:
		return b, nil
	}
	return BucketAny, fmt.Errorf("unknown experience bucket %q, want one of 0-2, 3-5, 5+", s)
}

// Contains reports whether years falls in the bucket; BucketAny matches everything.
func (b Bucket) Contains(years int) bool {
	switch b {
	case BucketJunior:
		return years <= 2
	case BucketMid:
		return years > 2 && years <= 5
	case BucketSenior:
		return years > 5
	default:
		return true
	}
}

type SortField string

const (
	SortNone           SortField = ""
	SortName           SortField = "name"
	SortEmail          SortField = "email"
	SortPhoneNumber    SortField = "phoneNumber"
	SortEducation      SortField = "education"
	SortWorkExperience SortField = "workExperience"
	SortCreatedAt      SortField = "createdAt"
)

var sortFields = []SortField{SortName, SortEmail, SortPhoneNumber, SortEducation, SortWorkExperience, SortCreatedAt}

func ParseSortField(s string) (SortField, error) {
	for _, f := range sortFields {
		if string(f) == s {
			return f, nil
		}
	}
	return SortNone, fmt.Errorf("unknown sort field %q", s)
}

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

type Filters struct {
	Search     string
	Education  string
	Experience Bucket
}

// View is single-owner state, not safe for concurrent use.
type View struct {
	source  []candidate.Candidate
	filters Filters
	field   SortField
	order   Order
	fold    cases.Caser
}

func New() *View {
	return &View{fold: cases.Fold()}
}

// Load replaces the source collection; filters and sort are kept.
func (v *View) Load(candidates []candidate.Candidate) {
	v.source = slices.Clone(candidates)
}

func (v *View) SetFilters(f Filters) {
	v.filters = f
}

func (v *View) Filters() Filters {
	return v.filters
}

// Reset clears the filters and any user-selected sort, restoring source order.
func (v *View) Reset() {
	v.filters = Filters{}
	v.field = SortNone
	v.order = ""
}

// SortBy selects field ascending, or flips to descending when field is
// already sorted ascending.
func (v *View) SortBy(field SortField) {
	if v.field == field && v.order == Asc {
		v.order = Desc
	} else {
		v.order = Asc
	}
	v.field = field
}

func (v *View) Sort() (SortField, Order) {
	return v.field, v.order
}

// Rows applies the search, education and experience predicates (all must
// hold) and then the selected sort. Equal keys keep their source order.
func (v *View) Rows() []candidate.Candidate {
	search := v.fold.String(strings.TrimSpace(v.filters.Search))

	rows := make([]candidate.Candidate, 0, len(v.source))
	for _, c := range v.source {
		if search != "" && !v.matchesSearch(c, search) {
			continue
		}
		if v.filters.Education != "" && deref(c.Education) != v.filters.Education {
			continue
		}
		if !v.filters.Experience.Contains(c.YearsOfExperience()) {
			continue
		}
		rows = append(rows, c)
	}

	if v.field == SortNone {
		return rows
	}

	cmp := v.compare(v.field)
	slices.SortStableFunc(rows, func(a, b candidate.Candidate) int {
		if v.order == Desc {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
	return rows
}

func (v *View) matchesSearch(c candidate.Candidate, search string) bool {
	return strings.Contains(v.fold.String(c.FirstName), search) ||
		strings.Contains(v.fold.String(c.LastName), search) ||
		strings.Contains(v.fold.String(c.Email), search)
}

func (v *View) compare(field SortField) func(a, b candidate.Candidate) int {
	switch field {
	case SortName:
		return func(a, b candidate.Candidate) int {
			return strings.Compare(v.fold.String(a.FirstName+" "+a.LastName), v.fold.String(b.FirstName+" "+b.LastName))
		}
	case SortEmail:
		return func(a, b candidate.Candidate) int {
			return strings.Compare(v.fold.String(a.Email), v.fold.String(b.Email))
		}
	case SortPhoneNumber:
		return func(a, b candidate.Candidate) int {
			return strings.Compare(deref(a.PhoneNumber), deref(b.PhoneNumber))
		}
	case SortEducation:
		return func(a, b candidate.Candidate) int {
			return strings.Compare(deref(a.Education), deref(b.Education))
		}
	case SortWorkExperience:
		return func(a, b candidate.Candidate) int {
			return strings.Compare(deref(a.WorkExperience), deref(b.WorkExperience))
		}
	case SortCreatedAt:
		return func(a, b candidate.Candidate) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	default:
		return func(candidate.Candidate, candidate.Candidate) int { return 0 }
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
