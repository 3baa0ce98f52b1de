package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"
)

// RenderTemplate renders a text template (hook commands, helm values) against the run context.
func RenderTemplate(name, raw string, rc RunContext) (string, error) {
	tmpl, err := template.New(name).Funcs(buildFuncMap()).Option("missingkey=error").Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rc); err != nil {
		return "", fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.String(), nil
}

// buildFuncMap constructs the helpers available in templates.
func buildFuncMap() template.FuncMap {
	return template.FuncMap{
		"default": funcDef,
		"toLower": strings.ToLower,
		"slug":    funcSlug,
		"envOr":   funcEnvOr,
	}
}

// funcDef returns def when value is empty or whitespace, otherwise value.
func funcDef(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// funcSlug normalizes a value into a lower-case dash-separated slug.
func funcSlug(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, " ", "-")
	v = strings.ReplaceAll(v, "_", "-")
	return v
}

// funcEnvOr looks up key in the process environment and falls back to def.
func funcEnvOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// RenderPairs renders every value of m as a template and returns sorted KEY=VALUE pairs.
func RenderPairs(name string, m map[string]string, rc RunContext) ([]string, error) {
	out := make([]string, 0, len(m))
	for _, key := range sortedKeys(m) {
		value, err := RenderTemplate(name+"-"+key, m[key], rc)
		if err != nil {
			return nil, err
		}
		out = append(out, key+"="+strings.TrimSpace(value))
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
