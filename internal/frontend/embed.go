package frontend

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// StaticFS returns the embedded stylesheet directory
func StaticFS() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
