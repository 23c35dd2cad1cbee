package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "legacy flags imply generate",
			in:   []string{"-f", "/hand", "-jh", "4", "-sb", "-lh", "12090301 12090302", "-step=2"},
			want: []string{"generate", "-f", "/hand", "--jh", "4", "--sb", "--lh", "12090301 12090302", "--step=2"},
		},
		{
			name: "subcommand kept",
			in:   []string{"generate", "-e", "env.yaml", "-mc", "2"},
			want: []string{"generate", "-e", "env.yaml", "--mc", "2"},
		},
		{
			name: "long flags untouched",
			in:   []string{"metadata", "--out", "x.cbor"},
			want: []string{"metadata", "--out", "x.cbor"},
		},
		{
			name: "help stays on root",
			in:   []string{"-h"},
			want: []string{"-h"},
		},
		{
			name: "negative value not rewritten",
			in:   []string{"generate", "-s", "-1"},
			want: []string{"generate", "-s", "-1"},
		},
		{
			name: "empty",
			in:   nil,
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rewriteLegacyArgs(tt.in))
		})
	}
}
