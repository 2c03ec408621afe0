package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrUnsupportedFormat is returned for files whose extension has no extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extensions lists the file extensions File can read.
var Extensions = []string{".txt", ".md", ".markdown"}

// Supported reports whether path has an extension File can read.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// File reads path and returns its plain text.
func File(path string) (string, error) {
	if !Supported(path) {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return Content(path, content)
}

// Content returns the plain text of content, choosing the extractor by the
// extension of name.
func Content(name string, content []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return Markdown(content), nil
	case ".txt":
		return strings.ToValidUTF8(string(content), "\uFFFD"), nil
	default:
		return "", fmt.Errorf("%s: %w", filepath.Base(name), ErrUnsupportedFormat)
	}
}

// Markdown renders content as plain text. Every block starts on its own
// line, so headings such as "## Article 3" come out as a bare "Article 3" line.
func Markdown(content []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(content))

	var b strings.Builder
	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if n.Type() == ast.TypeBlock {
			newline()
		}
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(content))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(content))
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.Write(line.Value(content))
			}
			newline()
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}
