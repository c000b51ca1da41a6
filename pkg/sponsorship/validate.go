package sponsorship

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kumc-bmi/heron-portal/pkg/records"
)

// nonEmployeeEntry matches one "id" or "id [description]" entry with an
// optional trailing separator. Bracketed descriptions may not contain
// semicolons or nested brackets.
var nonEmployeeEntry = regexp.MustCompile(`^\s*([^;\[\]\s]+)\s*(?:\[([^\[\];]+)\])?\s*;?`)

// usDate is MM/DD/YYYY with calendar-plausible month and day
var usDate = regexp.MustCompile(`^(0[1-9]|1[0-2])/(0[1-9]|[12][0-9]|3[01])/\d{4}$`)

// parseNonEmployees parses the free-text non-employee field. Any
// malformed entry rejects the whole string; a partial parse must not
// silently drop names from a filing.
func parseNonEmployees(raw string) ([]NonEmployee, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []NonEmployee
	rest := raw
	for len(rest) > 0 {
		if strings.TrimSpace(rest) == "" {
			break
		}
		m := nonEmployeeEntry.FindStringSubmatch(rest)
		if m == nil {
			return nil, fmt.Errorf("malformed non-employee entry near %q", strings.TrimSpace(rest))
		}
		entry := NonEmployee{ID: m[1], Description: strings.TrimSpace(m[2])}
		out = append(out, entry)
		rest = rest[len(m[0]):]
		// The match must stop at an entry boundary; leftover text that
		// is not a new entry means brackets were unbalanced
		if len(rest) > 0 && strings.TrimSpace(rest) != "" {
			if !nonEmployeeEntry.MatchString(rest) {
				return nil, fmt.Errorf("malformed non-employee entry near %q", strings.TrimSpace(rest))
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable non-employee entries in %q", raw)
	}
	return out, nil
}

// parseDate validates and parses an MM/DD/YYYY date
func parseDate(value string) (time.Time, error) {
	if !usDate.MatchString(value) {
		return time.Time{}, fmt.Errorf("date %q must be MM/DD/YYYY", value)
	}
	t, err := time.Parse("01/02/2006", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not a real date", value)
	}
	return t, nil
}

// validate collects every structural problem with the form. Directory
// resolution happens separately in FileRequest.
func (in FileInput) validate() ([]NonEmployee, *time.Time, *time.Time, []string) {
	var msgs []string

	if strings.TrimSpace(in.Title) == "" {
		msgs = append(msgs, "project title is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		msgs = append(msgs, "project description is required")
	}
	if !in.AccessType.Valid() {
		msgs = append(msgs, fmt.Sprintf("unknown access type %q", in.AccessType))
	}

	nonEmployees, err := parseNonEmployees(in.NonEmployees)
	if err != nil {
		msgs = append(msgs, err.Error())
	}
	if len(in.EmployeeIDs) == 0 && len(nonEmployees) == 0 && err == nil {
		msgs = append(msgs, "at least one sponsored user is required")
	}

	var expires *time.Time
	if strings.TrimSpace(in.Expiration) != "" {
		t, err := parseDate(in.Expiration)
		if err != nil {
			msgs = append(msgs, "expiration "+err.Error())
		} else {
			expires = &t
		}
	}

	var signatureDate *time.Time
	if in.AccessType == records.AccessDataAccess {
		if strings.TrimSpace(in.SignatureName) == "" {
			msgs = append(msgs, "data access requests require a signature name")
		}
		if strings.TrimSpace(in.SignatureDate) == "" {
			msgs = append(msgs, "data access requests require a signature date")
		} else {
			t, err := parseDate(in.SignatureDate)
			if err != nil {
				msgs = append(msgs, "signature "+err.Error())
			} else {
				signatureDate = &t
			}
		}
	}

	return nonEmployees, expires, signatureDate, msgs
}
