package main

import (
	"reflect"
	"testing"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single no trailing newline", "a.go", []string{"a.go"}},
		{"multiple with trailing newline", "a.go\nb.go\n", []string{"a.go", "b.go"}},
		{"multiple no trailing newline", "a.go\nb.go", []string{"a.go", "b.go"}},
		{"blank lines skipped", "a.go\n\nb.go\n", []string{"a.go", "b.go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitLines(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitLines(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}
