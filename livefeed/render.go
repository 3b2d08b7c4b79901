package livefeed

import "strings"

// RenderGuesses renders the guesses list items, most recent first.
func (f *Feed) RenderGuesses() string {
	var b strings.Builder
	for _, g := range f.Guesses() {
		b.WriteString(`<li><span class="guess-value">`)
		b.WriteString(Escape(g.Text))
		b.WriteString(`</span><span class="guess-user">(`)
		b.WriteString(Escape(g.By))
		b.WriteString(`)</span></li>`)
	}
	return b.String()
}

// RenderHints renders the hints list items in ascending time order.
func (f *Feed) RenderHints() string {
	var b strings.Builder
	for _, h := range f.Hints() {
		b.WriteString(`<li><span class="guess-value">`)
		b.WriteString(Escape(h.Text))
		b.WriteString(`</span><span class="guess-user">(`)
		b.WriteString(Escape(h.Time.Raw))
		b.WriteString(`)</span></li>`)
	}
	return b.String()
}

// RenderEurekas renders the eurekas list items, most recent first.
func (f *Feed) RenderEurekas() string {
	var b strings.Builder
	for _, e := range f.Eurekas() {
		b.WriteString("<li>")
		b.WriteString(Escape(e.Text))
		b.WriteString("</li>")
	}
	return b.String()
}
