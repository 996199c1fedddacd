package jsonheal

import (
	"encoding/json"
	"testing"
)

func TestHeal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "complete object untouched",
			input: `{"text":"hello"}`,
			want:  `{"text":"hello"}`,
		},
		{
			name:  "open object",
			input: `{"text":"hel`,
			want:  `{"text":"hel"}`,
		},
		{
			name:  "dangling colon",
			input: `{"text":`,
			want:  `{"text":null}`,
		},
		{
			name:  "trailing comma",
			input: `{"a":1,`,
			want:  `{"a":1}`,
		},
		{
			name:  "trailing comma with whitespace",
			input: `{"a":1, ` + "\n\t",
			want:  `{"a":1}`,
		},
		{
			name:  "nested containers",
			input: `{"items":[{"id":1},{"id":`,
			want:  `{"items":[{"id":1},{"id":null}]}`,
		},
		{
			name:  "truncated true",
			input: `{"ok":tr`,
			want:  `{"ok":true}`,
		},
		{
			name:  "truncated false",
			input: `{"ok":fals`,
			want:  `{"ok":false}`,
		},
		{
			name:  "truncated null",
			input: `{"v":nu`,
			want:  `{"v":null}`,
		},
		{
			name:  "string with escape",
			input: `{"text":"line\n`,
			want:  `{"text":"line\n"}`,
		},
		{
			name:  "trailing lone backslash dropped",
			input: `{"text":"abc\`,
			want:  `{"text":"abc"}`,
		},
		{
			name:  "open array of strings",
			input: `["one","tw`,
			want:  `["one","tw"]`,
		},
		{
			name:  "array trailing comma",
			input: `[1,2,`,
			want:  `[1,2]`,
		},
		{
			name:  "empty input",
			input: ``,
			want:  ``,
		},
		{
			name:  "quote inside string stays open",
			input: `{"text":"he said \"hi`,
			want:  `{"text":"he said \"hi"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Heal(tc.input)
			if got != tc.want {
				t.Fatalf("Heal(%q) = %q, want %q", tc.input, got, tc.want)
			}
			if got != "" && !json.Valid([]byte(got)) {
				t.Fatalf("Heal(%q) = %q is not valid JSON", tc.input, got)
			}
		})
	}
}

func TestHeal_PrefixesOfDocument(t *testing.T) {
	t.Parallel()

	// Every prefix of a realistic streamed payload must heal to valid JSON
	// (the empty prefix excepted).
	doc := `{"message":"Hello, world","voice":{"name":"aria","rate":1.5},"repeat":[true,false,null]}`
	for i := 1; i <= len(doc); i++ {
		prefix := doc[:i]
		healed := Heal(prefix)
		if !json.Valid([]byte(healed)) {
			t.Fatalf("prefix %q healed to invalid JSON %q", prefix, healed)
		}
	}
}
