package eventpage

import "strings"

// Template describes one of the visual layouts an event page can be published with.
type Template struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnail_url"`
}

const (
	TemplateMinimalist = "minimalist"
	TemplateElegant    = "elegant"
	TemplateBold       = "bold"
)

var templates = []Template{
	{
		ID:           TemplateMinimalist,
		Name:         "Minimalist",
		Description:  "Clean and modern design with focus on content",
		ThumbnailURL: "https://images.unsplash.com/photo-1501281668745-f7f57925c3b4?auto=format&fit=crop&q=80",
	},
	{
		ID:           TemplateElegant,
		Name:         "Elegant",
		Description:  "Sophisticated design with elegant typography",
		ThumbnailURL: "https://images.unsplash.com/photo-1492684223066-81342ee5ff30?auto=format&fit=crop&q=80",
	},
	{
		ID:           TemplateBold,
		Name:         "Bold",
		Description:  "Stand out with vibrant colors and dynamic layouts",
		ThumbnailURL: "https://images.unsplash.com/photo-1533174072545-7a4b6ad7a6c3?auto=format&fit=crop&q=80",
	},
}

// Templates returns a copy of the registry.
func Templates() []Template {
	return append([]Template(nil), templates...)
}

// TemplateByID looks up a template by id.
func TemplateByID(id string) (Template, bool) {
	normalized := strings.TrimSpace(id)
	for _, template := range templates {
		if template.ID == normalized {
			return template, true
		}
	}
	return Template{}, false
}
