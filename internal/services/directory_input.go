package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// stringList accepts either a JSON array or a comma-separated string.
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	var parts []string
	if len(b) > 0 && b[0] == '[' {
		var raw []any
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		for _, r := range raw {
			parts = append(parts, fmt.Sprint(r))
		}
	} else {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		parts = strings.Split(str, ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*s = out
	return nil
}

// flexString accepts a string or a number and stores it trimmed.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = ""
	case string:
		*f = flexString(strings.TrimSpace(t))
	default:
		*f = flexString(fmt.Sprint(t))
	}
	return nil
}

// flexInt accepts a number or a numeric string; empty means unset.
type flexInt struct {
	Set   bool
	Value *int
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	f.Set = true
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		f.Value = nil
	case float64:
		n := int(t)
		f.Value = &n
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			f.Value = nil
			return nil
		}
		n, err := strconv.Atoi(t)
		if err != nil {
			return fmt.Errorf("not a number: %q", t)
		}
		f.Value = &n
	default:
		return fmt.Errorf("unsupported value %v", t)
	}
	return nil
}

type companyInput struct {
	Name         *string     `json:"name"`
	ExternalID   *string     `json:"externalId"`
	Description  *string     `json:"description"`
	Website      *string     `json:"website"`
	Industries   *stringList `json:"industries"`
	Keywords     *stringList `json:"keywords"`
	Location     *string     `json:"location"`
	Logo         *string     `json:"logo"`
	Employees    *flexString `json:"employees"`
	Founded      flexInt     `json:"founded"`
	FundingStage *string     `json:"fundingStage"`
}

type personInput struct {
	Name              *string `json:"name"`
	ExternalID        *string `json:"externalId"`
	Designation       *string `json:"designation"`
	Department        *string `json:"department"`
	CompanyID         *string `json:"companyId"`
	CompanyExternalID *string `json:"companyExternalId"`
	Location          *string `json:"location"`
	Phone             *string `json:"phone"`
	Email             *string `json:"email"`
	CompanyEmail      *string `json:"companyEmail"`
}

func trimPtr(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugDashes  = regexp.MustCompile(`-+`)
	slugValid   = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// slugify lowercases, drops anything outside [a-z0-9 -] and joins words with single dashes.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// personStubFromEmail derives a display name and an external id base from an
// address: "jane.doe@x.io" gives "Jane Doe" and "p-jane-doe".
func personStubFromEmail(email string) (name, externalBase string) {
	local, _, _ := strings.Cut(email, "@")
	words := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	name = strings.Join(words, " ")
	if name == "" {
		name = email
	}
	base := strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(local), "-"), "-")
	if base == "" {
		base = "person"
	}
	return name, "p-" + base
}
