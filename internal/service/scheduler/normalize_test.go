package scheduler

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain speech", "hello there how are you", "hello there how are you"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"pure punctuation", "...!?", ""},
		{"noise token", "noise", ""},
		{"noise token cased punctuated", "Noise.", ""},
		{"silence token", "SILENCE", ""},
		{"inaudible token", "inaudible", ""},
		{"music token", "music...", ""},
		{"multi word noise", "background noise", ""},
		{"bracket annotation only", "[background noise]", ""},
		{"paren annotation only", "(silence)", ""},
		{"brace annotation only", "{music}", ""},
		{"mixed speech and annotation", "hello [noise] world", "hello world"},
		{"annotation at edges", "(coughs) thanks a lot [music]", "thanks a lot"},
		{"whitespace collapsed", "  hello   world  ", "hello world"},
		{"speech containing noise word", "that noise was loud", "that noise was loud"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWords(t *testing.T) {
	if got := Words("hello there how are"); got != 4 {
		t.Errorf("expected 4 words, got %d", got)
	}
	if got := Words(""); got != 0 {
		t.Errorf("expected 0 words, got %d", got)
	}
}
