package serve

import (
	"strings"
	"testing"
)

func TestMarkdownToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
	}{
		{
			name:     "bold",
			input:    "**Status:** awaiting image",
			contains: []string{"<b>Status:</b> awaiting image"},
			absent:   []string{"**", "<p>", "<strong>"},
		},
		{
			name:     "italic",
			input:    "This is _italic_ text",
			contains: []string{"<i>italic</i>"},
		},
		{
			name:     "inline code",
			input:    "Send `800 x 600`",
			contains: []string{"<code>800 x 600</code>"},
		},
		{
			name:     "escapes text",
			input:    "1 < 2 & 3",
			contains: []string{"1 &lt; 2 &amp; 3"},
		},
		{
			name:     "drops raw html",
			input:    "hi <script>alert(1)</script>",
			contains: []string{"hi"},
			absent:   []string{"<script>"},
		},
		{
			name:     "list",
			input:    "Commands:\n\n- /cancel - stop\n- /status - show",
			contains: []string{"Commands:\n\n• /cancel - stop\n• /status - show"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := markdownToHTML(tt.input)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("markdownToHTML(%q) = %q, missing %q", tt.input, got, want)
				}
			}
			for _, bad := range tt.absent {
				if strings.Contains(got, bad) {
					t.Errorf("markdownToHTML(%q) = %q, should not contain %q", tt.input, got, bad)
				}
			}
		})
	}
}

func TestMarkdownToHTMLBlank(t *testing.T) {
	if got := markdownToHTML("   "); got != "   " {
		t.Errorf("blank input changed to %q", got)
	}
}

func TestHelpRendersCleanly(t *testing.T) {
	got := markdownToHTML(telegramHelp)
	if strings.Contains(got, "\n\n\n") || strings.HasSuffix(got, "\n") {
		t.Errorf("help has stray blank lines: %q", got)
	}
	for _, want := range []string{"<b>Image Resizer Bot</b>", "• /cancel - abandon the current resize\n• /status"} {
		if !strings.Contains(got, want) {
			t.Errorf("help missing %q:\n%s", want, got)
		}
	}
}
