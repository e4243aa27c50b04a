package extract

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type markdownExtractor struct{}

// Extract walks the goldmark AST and keeps the text of every top-level
// block. The first level-1 heading becomes the title.
func (markdownExtractor) Extract(src []byte) (string, string, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var title string
	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		t := markdownBlockText(n, src)
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 && title == "" {
			title = string(bytes.TrimSpace([]byte(t)))
		}
		blocks = append(blocks, t)
	}
	return title, joinBlocks(blocks), nil
}

func markdownBlockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if c != n && c.Type() == ast.TypeBlock {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			buf.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(v.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := c.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
