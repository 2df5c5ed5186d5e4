package format

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

const documentStyle = `table{border-collapse:collapse;font-family:sans-serif;font-size:13px}` +
	`th,td{border:1px solid #ccc;padding:4px 8px;text-align:left}th{background:#f3f3f3}`

// documentHead renders the page preamble and the table header.
func documentHead(columns []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Export</title><style>")
		b.WriteString(documentStyle)
		b.WriteString("</style></head><body><table><thead><tr>")
		for _, c := range columns {
			b.WriteString("<th>")
			b.WriteString(templ.EscapeString(c))
			b.WriteString("</th>")
		}
		b.WriteString("</tr></thead><tbody>\n")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// documentRow renders one table row.
func documentRow(values []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<tr>")
		for _, v := range values {
			b.WriteString("<td>")
			b.WriteString(templ.EscapeString(v))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>\n")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

var documentFoot = templ.Raw("</tbody></table></body></html>\n")

type documentWriter struct {
	ctx     context.Context
	w       io.Writer
	columns int
}

func newDocumentWriter(w io.Writer, columns []string) (*documentWriter, error) {
	ctx := context.Background()
	if err := documentHead(columns).Render(ctx, w); err != nil {
		return nil, err
	}
	return &documentWriter{ctx: ctx, w: w, columns: len(columns)}, nil
}

func (d *documentWriter) WriteRow(values []string) error {
	cells := make([]string, d.columns)
	copy(cells, values)
	return documentRow(cells).Render(d.ctx, d.w)
}

func (d *documentWriter) Close() error {
	return documentFoot.Render(d.ctx, d.w)
}
