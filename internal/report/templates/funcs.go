package templates

import (
	"bytes"
	"html/template"
	"reflect"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

// Raw HTML in markdown input is omitted; goldmark only passes it through
// with html.WithUnsafe.
func markdownRenderer() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdown
}

// FuncMap is available to template markup and manifest header/footer
// strings.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"markdown": renderMarkdown,
		"json":     toJSON,
		"default":  defaultValue,
	}
}

func renderMarkdown(src any) (template.HTML, error) {
	s, _ := src.(string)
	var buf bytes.Buffer
	if err := markdownRenderer().Convert([]byte(s), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func toJSON(v any) (string, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(v)
}

// defaultValue is used as {{ .x | default "n/a" }}.
func defaultValue(def, v any) any {
	if isEmpty(v) {
		return def
	}
	return v
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return rv.IsZero()
}

// RenderString executes an inline template such as a manifest header.
func RenderString(name, src string, data any) (string, error) {
	if src == "" {
		return "", nil
	}
	tpl, err := template.New(name).Funcs(FuncMap()).Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
