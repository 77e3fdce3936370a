// Package templates holds the buyer-facing email bodies.
package templates

import (
	"embed"
	"html/template"
)

//go:embed *.html
var files embed.FS

// Parse loads every embedded template.
func Parse() (*template.Template, error) {
	return template.ParseFS(files, "*.html")
}
