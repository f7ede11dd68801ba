package candidate

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/uptrace/bun"
)

type Candidate struct {
	bun.BaseModel `bun:"table:candidates,alias:c"`

	ID              int       `bun:"id,pk,autoincrement" json:"id"`
	FirstName       string    `bun:"first_name,notnull" json:"firstName"`
	LastName        string    `bun:"last_name,notnull" json:"lastName"`
	Email           string    `bun:"email,unique,notnull" json:"email"`
	PhoneNumber     *string   `bun:"phone_number" json:"phoneNumber"`
	Address         *string   `bun:"address" json:"address"`
	Education       *string   `bun:"education" json:"education"`
	WorkExperience  *string   `bun:"work_experience" json:"workExperience"`
	ExperienceYears *int      `bun:"experience_years" json:"experienceYears"`
	CVURL           *string   `bun:"cv_url" json:"cvUrl"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// YearsOfExperience prefers the structured value and falls back to the
// leading integer of the free-text description, 0 when there is none.
func (c Candidate) YearsOfExperience() int {
	if c.ExperienceYears != nil {
		return *c.ExperienceYears
	}
	if c.WorkExperience == nil {
		return 0
	}
	return LeadingInt(*c.WorkExperience)
}

// LeadingInt parses an optionally signed integer at the start of s after
// leading whitespace. Anything unparsable yields 0.
func LeadingInt(s string) int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
