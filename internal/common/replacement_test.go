package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestExpandReferences(t *testing.T) {
	lookup := MapLookup(map[string]string{"HOME": "/home/asha", "resume-dir": "cv"})
	logger := arbor.NewLogger()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single", "{HOME}/cv.pdf", "/home/asha/cv.pdf"},
		{"multiple", "{HOME}/{resume-dir}/a.pdf", "/home/asha/cv/a.pdf"},
		{"unresolved kept", "{MISSING}/a.pdf", "{MISSING}/a.pdf"},
		{"no refs", "plain", "plain"},
		{"empty", "", ""},
		{"invalid name", "{not valid}", "{not valid}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandReferences(tt.input, lookup, logger))
		})
	}
}

func TestExpandInStruct(t *testing.T) {
	type inner struct{ Path string }
	type sample struct {
		Name   string
		Tags   []string
		Count  int
		Inner  inner
		Ptr    *inner
		hidden string
	}
	s := &sample{
		Name:   "{USER}",
		Tags:   []string{"{USER}-a", "b"},
		Count:  3,
		Inner:  inner{Path: "{HOME}"},
		Ptr:    &inner{Path: "{HOME}/x"},
		hidden: "{USER}",
	}
	lookup := MapLookup(map[string]string{"USER": "asha", "HOME": "/h"})

	require.NoError(t, ExpandInStruct(s, lookup, nil))
	assert.Equal(t, "asha", s.Name)
	assert.Equal(t, []string{"asha-a", "b"}, s.Tags)
	assert.Equal(t, "/h", s.Inner.Path)
	assert.Equal(t, "/h/x", s.Ptr.Path)
	assert.Equal(t, "{USER}", s.hidden)

	assert.Error(t, ExpandInStruct(*s, lookup, nil))
}

func TestEnvLookup(t *testing.T) {
	t.Setenv("JOBPILOT_TEST_REF", "value")
	v, ok := EnvLookup("JOBPILOT_TEST_REF")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}
