package optly

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
)

var firstIntegerPattern = regexp.MustCompile(`\b\d+\b`)

// Stringify renders a decoded JSON value as text: strings verbatim, numbers in
// their original literal form, everything else as compact JSON.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return "null"
	case fmt.Stringer:
		return v.String()
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}

	return string(data)
}

// FirstInteger returns the first standalone run of digits in text.
func FirstInteger(text string) (string, bool) {
	match := firstIntegerPattern.FindString(text)

	return match, match != ""
}

// scalarSpellings lists the other accepted renderings of booleans and null,
// as written by users coming from Python tooling.
var scalarSpellings = map[string][]string{
	"true":  {"True"},
	"false": {"False"},
	"null":  {"None"},
}

// matchesCriterion implements the Filter rule for one field.
func matchesCriterion(value interface{}, want string) bool {
	text := Stringify(value)
	if text == want {
		return true
	}

	switch v := value.(type) {
	case bool, nil:
		return slices.Contains(scalarSpellings[text], want)
	case string:
		return strings.Contains(v, want)
	case map[string]interface{}:
		return strings.Contains(text, want)
	case []interface{}:
		if strings.Contains(text, want) {
			return true
		}

		for _, elem := range v {
			m, ok := elem.(map[string]interface{})
			if !ok {
				continue
			}

			for _, nested := range m {
				if strings.Contains(Stringify(nested), want) {
					return true
				}
			}
		}
	}

	return false
}
