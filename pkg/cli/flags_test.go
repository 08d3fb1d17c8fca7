package cli

import (
	"reflect"
	"sort"
	"testing"
)

func TestParseGlob(t *testing.T) {
	available := []string{"openai.OpenAI", "anthropic.Anthropic", "bedrock.Bedrock", "replicate.Replicate", "mock.Mock"}

	tests := []struct {
		name    string
		pattern string
		want    []string
		wantErr bool
	}{
		{
			name:    "exact match case-insensitive",
			pattern: "openai.openai",
			want:    []string{"openai.OpenAI"},
		},
		{
			name:    "wildcard suffix",
			pattern: "openai.*",
			want:    []string{"openai.OpenAI"},
		},
		{
			name:    "wildcard prefix",
			pattern: "*.Mock",
			want:    []string{"mock.Mock"},
		},
		{
			name:    "wildcard both sides",
			pattern: "*rock*",
			want:    []string{"bedrock.Bedrock"},
		},
		{
			name:    "match all",
			pattern: "*",
			want:    []string{"anthropic.Anthropic", "bedrock.Bedrock", "mock.Mock", "openai.OpenAI", "replicate.Replicate"},
		},
		{
			name:    "no matches",
			pattern: "cohere.*",
			want:    []string{},
		},
		{
			name:    "empty pattern",
			pattern: "",
			want:    []string{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGlob(tt.pattern, available)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGlob() error = %v, wantErr %v", err, tt.wantErr)
			}
			sort.Strings(got)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseGlob() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCommaSeparatedGlobs(t *testing.T) {
	available := []string{"openai.OpenAI", "anthropic.Anthropic", "mock.Mock"}

	got, err := ParseCommaSeparatedGlobs("openai.*, mock.*", available)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort.Strings(got)
	want := []string{"mock.Mock", "openai.OpenAI"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseCommaSeparatedGlobs() = %v, want %v", got, want)
	}

	// Overlapping patterns deduplicate.
	got, err = ParseCommaSeparatedGlobs("*, openai.*", available)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(available) {
		t.Errorf("expected %d deduplicated names, got %d", len(available), len(got))
	}

	// Empty input is an error.
	if _, err := ParseCommaSeparatedGlobs("  ,  ", available); err == nil {
		t.Error("expected error for empty input")
	}
}
