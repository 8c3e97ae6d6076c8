package tools

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// UIComponent renders small HTML widgets for the chat front-end. Items in
// data are separated by ';', chart items are label=value and table cells
// are separated by '|'.
type UIComponent struct {
	templates map[string]*template.Template
	policy    *bluemonday.Policy
}

var componentTemplates = map[string]string{
	"card": `<div><h3>{{.Title}}</h3>{{range .Items}}<p>{{.Label}}</p>{{end}}</div>`,
	"chart": `<div><h3>{{.Title}}</h3><table><tbody>` +
		`{{range .Items}}<tr><th>{{.Label}}</th><td>{{.Value}}</td></tr>{{end}}` +
		`</tbody></table></div>`,
	"quiz": `<div><h3>{{.Title}}</h3><ol>{{range .Items}}<li>{{.Label}}</li>{{end}}</ol></div>`,
	"table": `<div><h3>{{.Title}}</h3><table><tbody>` +
		`{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}` +
		`</tbody></table></div>`,
}

type componentItem struct {
	Label string
	Value string
}

type componentView struct {
	Title string
	Items []componentItem
	Rows  [][]string
}

func NewUIComponent() *UIComponent {
	templates := make(map[string]*template.Template, len(componentTemplates))
	for kind, text := range componentTemplates {
		templates[kind] = template.Must(template.New(kind).Parse(text))
	}

	return &UIComponent{
		templates: templates,
		policy:    bluemonday.UGCPolicy(),
	}
}

func (*UIComponent) Name() string { return "generate_ui_component" }

func (*UIComponent) Description() string {
	return "Generate an interactive UI component (args: type=chart|card|quiz|table, title, data)"
}

func splitItems(data string) []string {
	var items []string
	for _, item := range strings.Split(data, ";") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func newComponentView(kind, title, data string) componentView {
	view := componentView{Title: title}

	for _, item := range splitItems(data) {
		switch kind {
		case "chart":
			label, value, _ := strings.Cut(item, "=")
			view.Items = append(view.Items, componentItem{
				Label: strings.TrimSpace(label),
				Value: strings.TrimSpace(value),
			})
		case "table":
			cells := strings.Split(item, "|")
			for i := range cells {
				cells[i] = strings.TrimSpace(cells[i])
			}
			view.Rows = append(view.Rows, cells)
		default:
			view.Items = append(view.Items, componentItem{Label: item})
		}
	}

	return view
}

func (u *UIComponent) Call(_ context.Context, args Args) (string, error) {
	kind, _ := args.Get("type")
	tmpl, ok := u.templates[kind]
	if !ok {
		return "", fmt.Errorf("unsupported component type %q", kind)
	}

	title, ok := args.Get("title")
	if !ok || title == "" {
		return "", fmt.Errorf("missing argument title")
	}

	data, _ := args.Get("data")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, newComponentView(kind, title, data)); err != nil {
		return "", fmt.Errorf("failed to render %s component: %w", kind, err)
	}

	return string(u.policy.SanitizeBytes(buf.Bytes())), nil
}
