package notestore

import (
	"fmt"
	"strings"
	"time"

	"github.com/beyondguo/webnote/internal/models"
)

// ExportPage renders one page's notes as a markdown document.
func ExportPage(page *models.PageRecord) string {
	var b strings.Builder
	title := page.PageTitle
	if page.CustomTitle != "" {
		title = page.CustomTitle
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**URL**: %s\n", page.URL)
	fmt.Fprintf(&b, "**Created**: %s\n", page.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Notes**: %d\n\n", len(page.Notes))
	b.WriteString("---\n\n## Notes\n\n")

	for i, n := range page.Notes {
		fmt.Fprintf(&b, "### %d. [%s]", i+1, n.Timestamp.Format("2006-01-02 15:04"))
		for _, tag := range n.Tags {
			fmt.Fprintf(&b, " #%s", tag)
		}
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(n.Text, "\n", "\n> "))
		if n.Note != "" {
			fmt.Fprintf(&b, "**Annotation**: %s\n\n", n.Note)
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

// ExportAll renders every page into a single markdown document.
func ExportAll(pages []models.PageRecord) string {
	var b strings.Builder
	totalNotes := 0
	for i := range pages {
		totalNotes += len(pages[i].Notes)
	}
	b.WriteString("# Web Notes\n\n")
	fmt.Fprintf(&b, "**Exported**: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Pages**: %d\n", len(pages))
	fmt.Fprintf(&b, "**Notes**: %d\n\n---\n\n", totalNotes)
	for i := range pages {
		b.WriteString(ExportPage(&pages[i]))
		if i < len(pages)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
