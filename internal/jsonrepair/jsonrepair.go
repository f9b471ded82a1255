// Package jsonrepair decodes near-JSON text produced by language models.
//
// Decoding runs as an explicit pipeline of independent stages:
//
//  1. Strict: the text is valid JSON as-is.
//  2. Cleaned: code fences and surrounding prose are removed, then the
//     outermost {...} object is parsed.
//  3. Fields: individual fields are pulled out with regular expressions when
//     no stage above produced a document (missing braces, raw newlines ...).
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoObject is returned when no JSON object can be located in the text.
var ErrNoObject = errors.New("jsonrepair: no json object")

var (
	openFenceRe  = regexp.MustCompile("(?i)^```(?:json)?[ \t]*\n?")
	closeFenceRe = regexp.MustCompile("\n?```[ \t]*$")
)

// Strict decodes raw as JSON without any cleanup.
func Strict(raw string, v any) error {
	return json.Unmarshal([]byte(strings.TrimSpace(raw)), v)
}

// StripFences removes a surrounding markdown code fence.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = openFenceRe.ReplaceAllString(s, "")
	s = closeFenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ExtractObject returns the text between the first '{' and the last '}'.
func ExtractObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", ErrNoObject
	}
	return raw[start : end+1], nil
}

// Cleaned strips fences and prose around the object, then decodes it.
func Cleaned(raw string, v any) error {
	s := StripFences(raw)
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	obj, err := ExtractObject(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("decode extracted object: %w", err)
	}
	return nil
}

// Decode runs the strict and cleaned stages in order. Callers fall back to
// the field extractors when it fails.
func Decode(raw string, v any) error {
	if err := Strict(raw, v); err == nil {
		return nil
	}
	return Cleaned(raw, v)
}

func fieldRe(name, value string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(name) + `"\s*:\s*` + value)
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\/`, "/", `\\`, `\`)

// StringField extracts a string value. A value whose closing quote is missing
// runs to the end of the text.
func StringField(raw, name string) (string, bool) {
	m := fieldRe(name, `"((?:[^"\\]|\\.)*)`).FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	if s, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
		return s, true
	}
	return unescaper.Replace(m[1]), true
}

// BoolField extracts a boolean value.
func BoolField(raw, name string) (bool, bool) {
	m := fieldRe(name, `(true|false)`).FindStringSubmatch(raw)
	if m == nil {
		return false, false
	}
	return m[1] == "true", true
}

// NumberField extracts a numeric value, quoted or not.
func NumberField(raw, name string) (float64, bool) {
	m := fieldRe(name, `"?(-?[0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?)`).FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
