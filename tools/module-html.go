package tools

import (
	"fmt"
	"io"

	"github.com/flosch/pongo2"
	md "github.com/russross/blackfriday/v2"

	"github.com/Comcast/natives/ext"
)

// RenderModuleHTML writes an HTML fragment documenting m.  Docs are
// Markdown.
func RenderModuleHTML(m *ext.Module, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	f(`<div class="moduleDoc doc">%s</div>`, md.Run([]byte(m.Doc)))

	if 0 < len(m.Functions) {
		f(`<div class="functions"><h2>Functions</h2><table>`)
		for _, fn := range m.Functions {
			f(`<tr class="function"><td><code id="%s.%s" class="name">%s</code></td>`, m.Name, fn.Name, fn.Name)
			f(`<td><div class="doc">%s</div></td></tr>`, md.Run([]byte(fn.Doc)))
		}
		f(`</table></div>`)
	}

	if 0 < len(m.Classes) {
		f(`<div class="classes"><h2>Classes</h2><table>`)
		for _, c := range m.Classes {
			f(`<tr class="class"><td><code id="%s.%s" class="name">%s</code></td>`, m.Name, c.Name, c.Name)
			f(`<td><div class="doc">%s</div></td></tr>`, md.Run([]byte(c.Doc)))
		}
		f(`</table></div>`)
	}

	return nil
}

var pageTemplate = pongo2.Must(pongo2.FromString(`<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>{{ module.Name }}</title>
{% for css in cssFiles %}  <link href="{{ css }}" rel="stylesheet">
{% endfor %}  </head>
  <body>
    <h1>{{ module.Name }}</h1>
{{ body|safe }}
{% if others %}    <div class="others">{% for name in others %}
      <a href="{{ name }}">{{ name }}</a>{% endfor %}
    </div>
{% endif %}  </body>
</html>
`))

// RenderModulePage writes a complete HTML page for m.  others names
// other modules to link to.
func RenderModulePage(m *ext.Module, out io.Writer, cssFiles []string, others []string) error {
	if cssFiles == nil {
		cssFiles = []string{"/static/module-html.css"}
	}

	var body bytesWriter
	if err := RenderModuleHTML(m, &body); err != nil {
		return err
	}

	return pageTemplate.ExecuteWriter(pongo2.Context{
		"module":   m,
		"cssFiles": cssFiles,
		"body":     string(body),
		"others":   others,
	}, out)
}

type bytesWriter []byte

func (w *bytesWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
