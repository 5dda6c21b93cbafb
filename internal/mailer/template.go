package mailer

import (
	"bytes"
	"embed"
	"fmt"
	htmlTemplate "html/template"
	"strings"
)

//go:embed tpl_files/*
var templateFiles embed.FS

// TemplateSet holds the parsed HTML mail templates.
type TemplateSet struct {
	htmlTemplates *htmlTemplate.Template
}

func NewTemplateSet() (*TemplateSet, error) {
	cache, err := htmlTemplate.New("Html").ParseFS(templateFiles, "tpl_files/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("failed to parse html template files: %w", err)
	}
	return &TemplateSet{htmlTemplates: cache}, nil
}

// RenderWelcome renders the waitlist welcome mail body.
func (t *TemplateSet) RenderWelcome(name string) (string, error) {
	var buf bytes.Buffer
	err := t.htmlTemplates.ExecuteTemplate(&buf, "welcome.gohtml", map[string]any{
		"Name": name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute template welcome.gohtml: %w", err)
	}
	return buf.String(), nil
}

// RenderBroadcast renders the admin broadcast body. The message text is
// escaped first, then newlines become <br> so plain-text composing in the
// admin panel keeps its line structure.
func (t *TemplateSet) RenderBroadcast(message string) (string, error) {
	escaped := htmlTemplate.HTMLEscapeString(message)
	withBreaks := strings.ReplaceAll(escaped, "\n", "<br>")

	var buf bytes.Buffer
	err := t.htmlTemplates.ExecuteTemplate(&buf, "broadcast.gohtml", map[string]any{
		"Message": htmlTemplate.HTML(withBreaks),
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute template broadcast.gohtml: %w", err)
	}
	return buf.String(), nil
}
