package frontend

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/cinecritic/internal/database"
)

// NotRated is shown wherever a title has no score
const NotRated = "Not yet rated"

const layoutFile = "templates/layout.html"

// Page is the data every template receives
type Page struct {
	Title string
	Nonce string
	Data  interface{}
}

// Templates holds one parsed set per page, each combined with the layout
type Templates struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"score": func(v *float64) string {
		if v == nil {
			return NotRated
		}
		return strconv.FormatFloat(*v, 'f', 2, 64)
	},
	"category": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 1, 64)
	},
	"mediaLabel": func(mediaType string) string {
		switch mediaType {
		case database.MediaTypeMovie:
			return "Movies"
		case database.MediaTypeTV:
			return "TV"
		default:
			return "All"
		}
	},
}

// LoadTemplates parses the embedded page templates
func LoadTemplates() (*Templates, error) {
	return loadTemplates(templateFS)
}

func loadTemplates(fsys fs.FS) (*Templates, error) {
	files, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	t := &Templates{pages: make(map[string]*template.Template)}
	for _, file := range files {
		if file == layoutFile {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(file, "templates/"), ".html")
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(fsys, layoutFile, file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		t.pages[name] = tmpl
	}

	if len(t.pages) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}
	return t, nil
}

// Render executes page into a buffer first so a template error never
// leaves a half-written response
func (t *Templates) Render(c *gin.Context, status int, page string, data Page) error {
	tmpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template %s: %w", page, err)
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
	return nil
}

func (t *Templates) renderOrFail(c *gin.Context, status int, page string, data Page) {
	if err := t.Render(c, status, page, data); err != nil {
		c.Error(err)
		c.String(http.StatusInternalServerError, "failed to render page")
	}
}
