package candidate

import (
	"errors"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

const (
	MinNameLength           = 2
	MinWorkExperienceLength = 50
	MaxExperienceYears      = 80

	maxSanitizePasses = 32
)

// EducationOptions is the closed set of education levels offered by the form.
var EducationOptions = []string{
	"High School",
	"Associate Degree",
	"Bachelor's Degree",
	"Master's Degree",
	"Ph.D.",
	"Technical Certificate",
	"Other",
}

var (
	emailPattern        = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	phonePattern        = regexp.MustCompile(`^\+?[\d\s-]+$`)
	phoneDisallowedChar = regexp.MustCompile(`[^\d+\s-]`)
)

// Policy holds the configurable parts of candidate validation.
type Policy struct {
	// AllowedDomains restricts email domains; empty allows any domain.
	AllowedDomains        []string
	RequireWorkExperience bool
	EnforceEducation      bool
}

// Input is a create request as submitted by a client, before sanitization.
type Input struct {
	FirstName       string `json:"firstName" validate:"required,min=2"`
	LastName        string `json:"lastName" validate:"required,min=2"`
	Email           string `json:"email" validate:"required,email_pattern,allowed_domain"`
	PhoneNumber     string `json:"phoneNumber,omitempty" validate:"omitempty,phone"`
	Address         string `json:"address,omitempty"`
	Education       string `json:"education,omitempty" validate:"omitempty,education"`
	WorkExperience  string `json:"workExperience,omitempty" validate:"work_experience"`
	ExperienceYears *int   `json:"experienceYears,omitempty" validate:"omitempty,min=0,max=80"`
}

var fieldMessages = map[string]string{
	"FirstName.min":                  "First name must be at least 2 characters",
	"LastName.min":                   "Last name must be at least 2 characters",
	"Email.email_pattern":            "Please enter a valid email address",
	"Email.allowed_domain":           "Only approved domain addresses are allowed",
	"PhoneNumber.phone":              "Please enter a valid phone number",
	"Education.education":            "Please select a valid education level",
	"WorkExperience.work_experience": "Work experience must be at least 50 characters",
	"ExperienceYears.min":            "Experience years must be between 0 and 80",
	"ExperienceYears.max":            "Experience years must be between 0 and 80",
}

var jsonFieldNames = map[string]string{
	"FirstName":       "firstName",
	"LastName":        "lastName",
	"Email":           "email",
	"PhoneNumber":     "phoneNumber",
	"Address":         "address",
	"Education":       "education",
	"WorkExperience":  "workExperience",
	"ExperienceYears": "experienceYears",
}

// Validator is the authoritative check applied to every create request.
// The CLI runs the same rules before submitting.
type Validator struct {
	validate  *validator.Validate
	policy    Policy
	sanitizer *bluemonday.Policy
}

func NewValidator(policy Policy) *Validator {
	v := &Validator{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		policy:    policy,
		sanitizer: bluemonday.StrictPolicy(),
	}

	v.validate.RegisterValidation("email_pattern", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	v.validate.RegisterValidation("allowed_domain", func(fl validator.FieldLevel) bool {
		return v.domainAllowed(fl.Field().String())
	})
	v.validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	v.validate.RegisterValidation("education", func(fl validator.FieldLevel) bool {
		return !v.policy.EnforceEducation || IsEducationOption(fl.Field().String())
	})
	v.validate.RegisterValidation("work_experience", func(fl validator.FieldLevel) bool {
		if !v.policy.RequireWorkExperience {
			return true
		}
		return utf8.RuneCountInString(fl.Field().String()) >= MinWorkExperienceLength
	}, true)

	return v
}

// Prepare sanitizes in and validates the result.
// The returned Input is what gets stored; a *ValidationError lists every failing field.
func (v *Validator) Prepare(in Input) (Input, error) {
	out := v.Sanitize(in)

	if err := v.Validate(out); err != nil {
		return Input{}, err
	}

	out.PhoneNumber = SanitizePhone(out.PhoneNumber)
	return out, nil
}

// Sanitize trims every text field and strips HTML from it.
func (v *Validator) Sanitize(in Input) Input {
	return Input{
		FirstName:       v.stripHTML(in.FirstName),
		LastName:        v.stripHTML(in.LastName),
		Email:           v.stripHTML(in.Email),
		PhoneNumber:     v.stripHTML(in.PhoneNumber),
		Address:         v.stripHTML(in.Address),
		Education:       v.stripHTML(in.Education),
		WorkExperience:  v.stripHTML(in.WorkExperience),
		ExperienceYears: in.ExperienceYears,
	}
}

func (v *Validator) Validate(in Input) error {
	var missing []FieldError
	for _, f := range []struct{ field, value string }{
		{"firstName", in.FirstName},
		{"lastName", in.LastName},
		{"email", in.Email},
	} {
		if f.value == "" {
			missing = append(missing, FieldError{Field: f.field, Message: MsgRequiredFields})
		}
	}
	if len(missing) > 0 {
		return invalidFields(missing)
	}

	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid("", err.Error())
	}

	fields := make([]FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := jsonFieldNames[fe.StructField()]
		msg, ok := fieldMessages[fe.StructField()+"."+fe.Tag()]
		if !ok {
			msg = "Invalid value for " + field
		}
		fields = append(fields, FieldError{Field: field, Message: msg})
	}
	return invalidFields(fields)
}

// stripHTML sanitizes and unescapes until the text is stable, so entity-encoded
// tags at any depth are stripped rather than decoded into markup.
func (v *Validator) stripHTML(s string) string {
	s = strings.TrimSpace(s)
	for i := 0; i < maxSanitizePasses; i++ {
		cleaned := strings.TrimSpace(html.UnescapeString(v.sanitizer.Sanitize(s)))
		if cleaned == s {
			return s
		}
		s = cleaned
	}
	// Never stabilised: keep the escaped form.
	return strings.TrimSpace(v.sanitizer.Sanitize(s))
}

func (v *Validator) domainAllowed(email string) bool {
	if len(v.policy.AllowedDomains) == 0 {
		return true
	}
	email = strings.ToLower(email)
	for _, domain := range v.policy.AllowedDomains {
		domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@"))
		if domain == "" {
			continue
		}
		if strings.HasSuffix(email, "@"+domain) || strings.HasSuffix(email, "."+domain) {
			return true
		}
	}
	return false
}

func IsEducationOption(s string) bool {
	for _, opt := range EducationOptions {
		if s == opt {
			return true
		}
	}
	return false
}

// SanitizePhone keeps digits, plus signs, whitespace and hyphens.
func SanitizePhone(phone string) string {
	return strings.TrimSpace(phoneDisallowedChar.ReplaceAllString(phone, ""))
}

// MaskEmail hides all but the first and last two characters, for logs.
func MaskEmail(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:2]) + strings.Repeat("*", len(r)-4) + string(r[len(r)-2:])
}

// ToCandidate maps a prepared Input onto a new record. Empty optional fields are stored as NULL.
func (in Input) ToCandidate() *Candidate {
	return &Candidate{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		PhoneNumber:     optional(in.PhoneNumber),
		Address:         optional(in.Address),
		Education:       optional(in.Education),
		WorkExperience:  optional(in.WorkExperience),
		ExperienceYears: in.ExperienceYears,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
