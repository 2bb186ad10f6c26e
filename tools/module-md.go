package tools

import (
	"fmt"
	"io"

	"github.com/jsccast/yaml"

	"github.com/Comcast/natives/ext"
)

// RenderModuleMarkdown writes Markdown documentation for m.
func RenderModuleMarkdown(m *ext.Module, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	f("# %s", m.Name)
	if m.Doc != "" {
		f("")
		f("%s", m.Doc)
	}

	if 0 < len(m.Functions) {
		f("")
		f("## Functions")
		for _, fn := range m.Functions {
			f("")
			f("### `%s.%s()`", m.Name, fn.Name)
			if fn.Doc != "" {
				f("")
				f("%s", fn.Doc)
			}
		}
	}

	if 0 < len(m.Classes) {
		f("")
		f("## Classes")
		for _, c := range m.Classes {
			f("")
			f("### `new %s.%s()`", m.Name, c.Name)
			if c.Doc != "" {
				f("")
				f("%s", c.Doc)
			}
		}
	}

	return nil
}

// RenderModuleYAML writes m's names and docs as YAML.
func RenderModuleYAML(m *ext.Module, out io.Writer) error {
	bs, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	_, err = out.Write(bs)
	return err
}

// Render dispatches on format: "md" (or "markdown"), "html" (a full
// page), or "yaml".
func Render(m *ext.Module, format string, out io.Writer) error {
	switch format {
	case "md", "markdown":
		return RenderModuleMarkdown(m, out)
	case "html":
		return RenderModulePage(m, out, nil, nil)
	case "yaml", "yml":
		return RenderModuleYAML(m, out)
	default:
		return fmt.Errorf("unknown format '%s'", format)
	}
}
