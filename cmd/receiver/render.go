package main

import (
	"fmt"
	"strings"

	"github.com/mghextreme/blu-presenter-sub000/internal/content"
	"github.com/mghextreme/blu-presenter-sub000/internal/presenter"
)

// render describes what a display would show for st. The selected part is
// marked with ">".
func render(st presenter.State) string {
	if st.Override != nil {
		return fmt.Sprintf("[%s]", st.Override.ID)
	}
	if st.Item == nil {
		return "[idle]"
	}
	slide := st.Item.SlideAt(deref(st.Selection.Slide))
	if slide == nil || slide.IsEmpty {
		return fmt.Sprintf("%s: [empty]", st.Item.Title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d/%d)", st.Item.Title, deref(st.Selection.Slide)+1, len(st.Item.Slides))
	part := deref(st.Selection.Part)
	for i, c := range slide.Contents {
		marker := "  "
		if i == part {
			marker = "> "
		}
		b.WriteString("\n")
		b.WriteString(marker)
		b.WriteString(describe(c))
	}
	return b.String()
}

func describe(c content.SlideContent) string {
	switch v := c.(type) {
	case content.TitleContent:
		if v.Subtitle == "" {
			return v.Title
		}
		return v.Title + " / " + v.Subtitle
	case content.TextContent:
		return strings.ReplaceAll(v.Text, "\n", " | ")
	case content.ImageContent:
		if v.Alt != "" {
			return fmt.Sprintf("[image %s: %s]", v.URL, v.Alt)
		}
		return fmt.Sprintf("[image %s]", v.URL)
	}
	return "[?]"
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
