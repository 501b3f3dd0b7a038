package tgtext

import (
	"html"
	"strings"
	"unicode/utf8"
)

// ToHTML converts a Markdown subset to the HTML subset Telegram
// accepts with ParseMode "HTML":
//
//	**bold**          -> <b>
//	*italic* _italic_ -> <i>
//	~~strike~~        -> <s>
//	`code`            -> <code>
//	```fenced```      -> <pre><code>
//	[text](url)       -> <a href="url">
//
// Everything else, including unmatched delimiters, is escaped and
// passed through verbatim. Bold, italic and strikethrough spans may
// nest; code spans are literal.
func ToHTML(src string) string {
	var b strings.Builder
	b.Grow(len(src) + len(src)/8)
	writeHTML(&b, src)
	return b.String()
}

func writeHTML(b *strings.Builder, src string) {
	for len(src) > 0 {
		j := strings.IndexAny(src, "`*_~[")
		if j < 0 {
			b.WriteString(html.EscapeString(src))
			return
		}
		if j > 0 {
			b.WriteString(html.EscapeString(src[:j]))
			src = src[j:]
		}
		if n := writeSpan(b, src); n > 0 {
			src = src[n:]
			continue
		}
		// Unmatched delimiter: emit it as plain text.
		r, n := utf8.DecodeRuneInString(src)
		b.WriteString(html.EscapeString(string(r)))
		src = src[n:]
	}
}

// writeSpan tries to consume one formatting span at the start of src.
// It returns the number of bytes consumed, or 0 when src does not
// begin a well-formed span.
func writeSpan(b *strings.Builder, src string) int {
	switch {
	case strings.HasPrefix(src, "```"):
		end := strings.Index(src[3:], "```")
		if end < 0 {
			return 0
		}
		body := src[3 : 3+end]
		// Drop the optional language tag on the opening line.
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && isLangTag(body[:nl]) {
			body = body[nl+1:]
		}
		b.WriteString("<pre><code>")
		b.WriteString(html.EscapeString(body))
		b.WriteString("</code></pre>")
		return 3 + end + 3

	case strings.HasPrefix(src, "`"):
		end := strings.Index(src[1:], "`")
		if end <= 0 {
			return 0
		}
		b.WriteString("<code>")
		b.WriteString(html.EscapeString(src[1 : 1+end]))
		b.WriteString("</code>")
		return 1 + end + 1

	case strings.HasPrefix(src, "**"):
		return writeDelimited(b, src, "**", "b")

	case strings.HasPrefix(src, "~~"):
		return writeDelimited(b, src, "~~", "s")

	case strings.HasPrefix(src, "*"):
		return writeDelimited(b, src, "*", "i")

	case strings.HasPrefix(src, "_"):
		return writeDelimited(b, src, "_", "i")

	case strings.HasPrefix(src, "["):
		return writeLink(b, src)
	}
	return 0
}

func writeDelimited(b *strings.Builder, src, delim, tag string) int {
	end := strings.Index(src[len(delim):], delim)
	if end <= 0 {
		return 0
	}
	b.WriteString("<" + tag + ">")
	writeHTML(b, src[len(delim):len(delim)+end])
	b.WriteString("</" + tag + ">")
	return len(delim) + end + len(delim)
}

func writeLink(b *strings.Builder, src string) int {
	close := strings.IndexByte(src, ']')
	if close <= 1 || close+1 >= len(src) || src[close+1] != '(' {
		return 0
	}
	urlEnd := strings.IndexByte(src[close+2:], ')')
	if urlEnd <= 0 {
		return 0
	}
	text := src[1:close]
	url := src[close+2 : close+2+urlEnd]
	b.WriteString(`<a href="`)
	b.WriteString(html.EscapeString(url))
	b.WriteString(`">`)
	b.WriteString(html.EscapeString(text))
	b.WriteString("</a>")
	return close + 2 + urlEnd + 1
}

func isLangTag(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '\t' {
			return false
		}
	}
	return true
}
