// Package fixture synthesizes disposable configuration documents for the
// server under test. A fixture file outlives all probes that reference it and
// is removed exactly once via Release.
package fixture

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/Simonization/webservTester/internal/model"
)

// The grammar is the SUT's own block format; it is generated here, never
// parsed.
var configTmpl = template.Must(template.New("config").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(
	`{{range .Servers}}server {
	host {{.Host}};
{{- range .Listen}}
	listen {{.}};
{{- end}}
	server_name {{.Name}};
	root {{.Root}};
{{- if .MaxBodySize}}
	client_max_body_size {{.MaxBodySize}};
{{- end}}
{{range .Locations}}	location {{.Path}} {
{{- if .Index}}
		index {{.Index}};
{{- end}}
{{- if .Methods}}
		allowed_methods {{join .Methods " "}};
{{- end}}
{{- if .UploadDir}}
		upload_dir {{.UploadDir}};
{{- end}}
{{- if .Autoindex}}
		autoindex on;
{{- end}}
{{- if .CGIExt}}
		cgi_extension {{.CGIExt}};
{{- end}}
	}
{{end}}}

{{end}}`))

// Generator materializes fixture descriptions into temporary files.
type Generator struct {
	log *slog.Logger
}

func NewGenerator(log *slog.Logger) *Generator {
	return &Generator{log: log}
}

// File is a materialized fixture. Release removes it; calling Release more
// than once is a no-op, and cleanup failures are logged, never fatal.
type File struct {
	Path string

	once sync.Once
	log  *slog.Logger
}

// Render returns the configuration document for a fixture description.
func Render(fx model.Fixture) (string, error) {
	b := strings.Builder{}

	if err := configTmpl.Execute(&b, fx); err != nil {
		return "", fmt.Errorf("rendering fixture: %w", err)
	}

	return b.String(), nil
}

// Create writes the fixture to a unique temporary file. The caller must call
// Release on the returned file exactly once, on every exit path.
func (g *Generator) Create(fx model.Fixture) (*File, error) {
	doc, err := Render(fx)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "webserv-*.conf")
	if err != nil {
		return nil, fmt.Errorf("creating fixture file: %w", err)
	}

	if _, err := f.WriteString(doc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("writing fixture file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("closing fixture file: %w", err)
	}

	g.log.Debug("fixture created", "path", f.Name())

	return &File{Path: f.Name(), log: g.log}, nil
}

func (f *File) Release() {
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil {
			f.log.Warn("fixture cleanup failed", "path", f.Path, "error", err)
		}
	})
}
