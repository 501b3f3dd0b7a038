package tgtext

import "testing"

func TestToHTML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "hello world", want: "hello world"},
		{name: "escaping", in: "a < b & c > d", want: "a &lt; b &amp; c &gt; d"},
		{name: "bold", in: "**bold** text", want: "<b>bold</b> text"},
		{name: "italic star", in: "an *italic* word", want: "an <i>italic</i> word"},
		{name: "italic underscore", in: "an _italic_ word", want: "an <i>italic</i> word"},
		{name: "strike", in: "~~gone~~", want: "<s>gone</s>"},
		{name: "inline code", in: "run `ls -la` now", want: "run <code>ls -la</code> now"},
		{name: "code is literal", in: "`**not bold**`", want: "<code>**not bold**</code>"},
		{name: "code escapes html", in: "`a<b>`", want: "<code>a&lt;b&gt;</code>"},
		{name: "link", in: "[docs](https://example.com/?a=1&b=2)", want: `<a href="https://example.com/?a=1&amp;b=2">docs</a>`},
		{name: "nested", in: "**bold and _italic_**", want: "<b>bold and <i>italic</i></b>"},
		{name: "unmatched star", in: "2 * 3 = 6", want: "2 * 3 = 6"},
		{name: "unmatched bold", in: "**dangling", want: "**dangling"},
		{name: "fenced", in: "```\ncode here\n```", want: "<pre><code>code here\n</code></pre>"},
		{name: "fenced with lang", in: "```go\nx := 1\n```", want: "<pre><code>x := 1\n</code></pre>"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := ToHTML(tt.in); got != tt.want {
				t.Fatalf("ToHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
