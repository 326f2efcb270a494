package validate

import (
	"fmt"
	"strconv"
	"strings"
)

// Package validate checks uploaded files against a declarative rule set
// before any bytes are stored. Rule sets come from a pipe-delimited string
// ("max:1024|mimes:pdf,png"), a slice of rule strings, or a pre-built Rules
// value.

// FileInfo describes the upload under validation.
type FileInfo struct {
	Filename    string
	Size        int64
	ContentType string
}

// Error is a validation failure. Its message is the space-joined set of
// per-rule messages.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return strings.Join(e.Messages, " ")
}

// IsValidationError reports whether err is a *Error.
func IsValidationError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

type rule struct {
	name string
	arg  string
}

// Rules is a parsed, ordered rule set. The zero value is empty and validates
// everything.
type Rules struct {
	rules []rule
}

// Empty reports whether the rule set has no rules.
func (r Rules) Empty() bool {
	return len(r.rules) == 0
}

var knownRules = map[string]struct{}{
	"required":   {},
	"max":        {},
	"min":        {},
	"mimes":      {},
	"mimetypes":  {},
	"extensions": {},
}

// Parse builds a rule set from a pipe-delimited string. An empty string
// parses to the empty rule set.
func Parse(spec string) (Rules, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Rules{}, nil
	}
	return ParseList(strings.Split(spec, "|"))
}

// ParseList builds a rule set from individual "name:arg" rule strings.
func ParseList(specs []string) (Rules, error) {
	var out Rules
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		name, arg, _ := strings.Cut(s, ":")
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := knownRules[name]; !ok {
			return Rules{}, fmt.Errorf("unknown validation rule %q", name)
		}
		out.rules = append(out.rules, rule{name: name, arg: strings.TrimSpace(arg)})
	}
	return out, nil
}

// MustParse is Parse for static rule strings; it panics on a bad spec.
func MustParse(spec string) Rules {
	r, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate runs the rule set against the file. An empty rule set
// short-circuits to valid. On failure it returns a *Error carrying every
// failing rule's message.
func (r Rules) Validate(f FileInfo) error {
	if r.Empty() {
		return nil
	}
	var msgs []string
	for _, ru := range r.rules {
		if msg := ru.check(f); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) > 0 {
		return &Error{Messages: msgs}
	}
	return nil
}

func (ru rule) check(f FileInfo) string {
	switch ru.name {
	case "required":
		if f.Filename == "" && f.Size <= 0 {
			return "a file is required."
		}
	case "max":
		kb, err := strconv.ParseInt(ru.arg, 10, 64)
		if err != nil {
			return fmt.Sprintf("invalid max rule argument %q.", ru.arg)
		}
		if f.Size > kb*1024 {
			return fmt.Sprintf("the file may not be greater than %d kilobytes.", kb)
		}
	case "min":
		kb, err := strconv.ParseInt(ru.arg, 10, 64)
		if err != nil {
			return fmt.Sprintf("invalid min rule argument %q.", ru.arg)
		}
		if f.Size < kb*1024 {
			return fmt.Sprintf("the file must be at least %d kilobytes.", kb)
		}
	case "mimes", "extensions":
		ext := strings.ToLower(strings.TrimPrefix(fileExt(f.Filename), "."))
		if !inList(ext, ru.arg) {
			return fmt.Sprintf("the file must have an extension of: %s.", ru.arg)
		}
	case "mimetypes":
		if !mimeInList(f.ContentType, ru.arg) {
			return fmt.Sprintf("the file must be of type: %s.", ru.arg)
		}
	}
	return ""
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

func inList(v, csv string) bool {
	for _, item := range strings.Split(csv, ",") {
		if v == strings.ToLower(strings.TrimSpace(item)) {
			return true
		}
	}
	return false
}

// mimeInList matches exact types and "prefix/*" wildcards.
func mimeInList(ct, csv string) bool {
	ct = strings.ToLower(ct)
	for _, item := range strings.Split(csv, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if item == ct {
			return true
		}
		if prefix, ok := strings.CutSuffix(item, "/*"); ok && strings.HasPrefix(ct, prefix+"/") {
			return true
		}
	}
	return false
}
