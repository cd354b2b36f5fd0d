package common

import (
	"fmt"
	"os"
	"reflect"
	"regexp"

	"github.com/ternarybob/arbor"
)

// refPattern matches {name} references. Names allow letters, digits,
// hyphens and underscores.
var refPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// Lookup resolves a reference name
type Lookup func(name string) (string, bool)

// EnvLookup resolves references from the process environment
func EnvLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// MapLookup resolves references from m
func MapLookup(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

// ExpandReferences replaces every {name} in input with its resolved value.
// Unresolved references are left in place and logged.
//
//	ExpandReferences("{HOME}/cv.pdf", EnvLookup, logger) // "/home/asha/cv.pdf"
func ExpandReferences(input string, lookup Lookup, logger arbor.ILogger) string {
	if input == "" {
		return input
	}
	return refPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := lookup(name); ok {
			return v
		}
		if logger != nil {
			logger.Warn().Str("reference", match).Msg("Unresolved reference")
		}
		return match
	})
}

// ExpandInStruct expands references in every exported string and []string
// field of the struct pointed to by v, including nested structs.
func ExpandInStruct(v interface{}, lookup Lookup, logger arbor.ILogger) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("ExpandInStruct requires a struct pointer, got %T", v)
	}
	expandValue(val.Elem(), lookup, logger)
	return nil
}

func expandValue(val reflect.Value, lookup Lookup, logger arbor.ILogger) {
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(ExpandReferences(field.String(), lookup, logger))
		case reflect.Slice:
			if field.Type().Elem().Kind() != reflect.String {
				continue
			}
			for j := 0; j < field.Len(); j++ {
				el := field.Index(j)
				el.SetString(ExpandReferences(el.String(), lookup, logger))
			}
		case reflect.Struct:
			expandValue(field, lookup, logger)
		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				expandValue(field.Elem(), lookup, logger)
			}
		}
	}
}
