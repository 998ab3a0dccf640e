package pipeline

import "testing"

func TestReplaceSpacers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"styled spacer", `one<span style="width:3px"></span>two`, "one two"},
		{"class spacer", `a<span class="s5"> </span>b`, "a b"},
		{"multiline spacer", "a<span>\n</span>b", "a b"},
		{"spans with text kept", `<span class="w">word</span>`, `<span class="w">word</span>`},
		{"several", `<span></span>x<span a="1"></span>`, " x "},
		{"no spans", "<p>plain</p>", "<p>plain</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ReplaceSpacers(tt.in); got != tt.want {
				t.Errorf("ReplaceSpacers(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
