package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes environment variables written as Go template
// references ({{.VAR_NAME}}) in YAML content. Literal $ characters in
// regex patterns, passwords, and URL templates pass through untouched.
//
// Missing variables expand to empty string; validation catches required
// fields that end up empty. Content that fails to parse or execute as a
// template is returned as-is.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("yaml").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, environMap()); err != nil {
		return data
	}
	return buf.Bytes()
}

func environMap() map[string]string {
	m := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			m[key] = value
		}
	}
	return m
}
