// Package render turns template files into text.
//
// Templates use text/template syntax with a flat string context. A key the
// template references but the context lacks renders as an empty string.
//
// A value that is not known yet can be carried through a first pass as a
// Deferred field: it renders as its own template action, so the output of
// pass one is a valid template for pass two. The other values of a context
// carrying a Deferred field are escaped so that pass two writes them back
// verbatim instead of interpreting them.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Context maps template keys to their values.
type Context map[string]string

// Deferred names a context key whose value is supplied in a later pass.
type Deferred string

// Token is the template action that a Deferred field renders as.
func (d Deferred) Token() string {
	return "{{ ." + string(d) + " }}"
}

// Escape returns s in a form that renders back to s when parsed as a
// template. Every opening brace becomes an action printing it, so no left
// delimiter survives; closing braces outside an action are plain text.
func Escape(s string) string {
	return strings.ReplaceAll(s, "{", `{{"{"}}`)
}

// Defer adds ds to c so that rendering leaves their actions in place. Values
// already in c are escaped; fields added after Defer are not.
func (c Context) Defer(ds ...Deferred) Context {
	for k, v := range c {
		c[k] = Escape(v)
	}
	for _, d := range ds {
		c[string(d)] = d.Token()
	}
	return c
}

// String renders text as a template named name.
func String(name, text string, ctx Context) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	if ctx == nil {
		ctx = Context{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]string(ctx)); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// File renders the template file at path.
func File(path string, ctx Context) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", path, err)
	}
	return String(filepath.Base(path), string(data), ctx)
}
