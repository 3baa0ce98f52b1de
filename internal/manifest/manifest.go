// Package manifest renders the workload manifest directory into a single YAML stream
// ready for kubectl apply -f -.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options controls rendering.
type Options struct {
	// Dir holds the *.yaml and *.yml files; subdirectories are ignored.
	Dir string
	// Placeholder is replaced by Replacement in every file. An empty Replacement
	// leaves the placeholder in place (enough for deletion by name).
	Placeholder string
	Replacement string
	// Namespace is set on namespaced objects that do not declare one.
	Namespace string
	// EnsureNamespace prepends a Namespace object for Namespace unless the
	// manifests declare it or it is a built-in namespace.
	EnsureNamespace bool
	// ClusterScoped names extra kinds, usually custom resources, that never take a namespace.
	ClusterScoped []string
}

// Rendered is the output of Render.
type Rendered struct {
	YAML []byte
	// Files lists the rendered files in order.
	Files []string
	// Documents is the number of non-empty YAML documents.
	Documents int
	// Substitutions counts placeholder occurrences replaced.
	Substitutions int
}

// Render reads every manifest file in lexical order, substitutes the placeholder,
// defaults the namespace and re-encodes all documents as one stream.
func Render(opts Options) (Rendered, error) {
	var out Rendered

	files, err := List(opts.Dir)
	if err != nil {
		return out, err
	}
	if len(files) == 0 {
		return out, fmt.Errorf("no manifests (*.yaml, *.yml) found in %s", opts.Dir)
	}

	var documents []map[string]any
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return out, fmt.Errorf("read manifest %q: %w", path, err)
		}
		text := string(raw)
		if opts.Placeholder != "" && opts.Replacement != "" {
			out.Substitutions += strings.Count(text, opts.Placeholder)
			text = strings.ReplaceAll(text, opts.Placeholder, opts.Replacement)
		}

		docs, err := decodeDocuments(path, text)
		if err != nil {
			return out, err
		}
		for _, doc := range docs {
			applyNamespace(doc, opts.Namespace, opts.ClusterScoped)
		}
		documents = append(documents, docs...)
		out.Files = append(out.Files, path)
	}

	if opts.EnsureNamespace && needsNamespace(documents, opts.Namespace) {
		documents = append([]map[string]any{{
			"apiVersion": "v1",
			"kind":       "Namespace",
			"metadata":   map[string]any{"name": opts.Namespace},
		}}, documents...)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, doc := range documents {
		if err := enc.Encode(doc); err != nil {
			_ = enc.Close()
			return out, fmt.Errorf("encode manifest: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return out, fmt.Errorf("finalize manifest stream: %w", err)
	}

	out.YAML = buf.Bytes()
	out.Documents = len(documents)
	return out, nil
}

// List returns the manifest files of dir sorted by name.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read manifests dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

func decodeDocuments(path, text string) ([]map[string]any, error) {
	var docs []map[string]any
	dec := yaml.NewDecoder(strings.NewReader(text))
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode manifest %q: %w", path, err)
		}
		if len(doc) == 0 {
			continue
		}
		if kind, _ := doc["kind"].(string); kind == "" {
			return nil, fmt.Errorf("decode manifest %q: document without kind", path)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func needsNamespace(docs []map[string]any, ns string) bool {
	switch ns {
	case "", "default", "kube-system", "kube-public", "kube-node-lease":
		return false
	}
	for _, doc := range docs {
		if kind, _ := doc["kind"].(string); kind != "Namespace" {
			continue
		}
		meta, _ := doc["metadata"].(map[string]any)
		if name, _ := meta["name"].(string); name == ns {
			return false
		}
	}
	return true
}

// clusterScoped lists built-in and widely installed custom kinds that never take a namespace.
var clusterScoped = map[string]struct{}{
	"Namespace":                        {},
	"Node":                             {},
	"PersistentVolume":                 {},
	"ClusterRole":                      {},
	"ClusterRoleBinding":               {},
	"StorageClass":                     {},
	"VolumeAttachment":                 {},
	"CSIDriver":                        {},
	"CSINode":                          {},
	"IngressClass":                     {},
	"PriorityClass":                    {},
	"RuntimeClass":                     {},
	"APIService":                       {},
	"CustomResourceDefinition":         {},
	"ValidatingWebhookConfiguration":   {},
	"MutatingWebhookConfiguration":     {},
	"ValidatingAdmissionPolicy":        {},
	"ValidatingAdmissionPolicyBinding": {},
	"FlowSchema":                       {},
	"PriorityLevelConfiguration":       {},
	"CertificateSigningRequest":        {},
	"ClusterIssuer":                    {},
	"ClusterSecretStore":               {},
	"IngressClassParams":               {},
}

func applyNamespace(doc map[string]any, ns string, extra []string) {
	if ns == "" {
		return
	}
	kind, _ := doc["kind"].(string)
	if _, ok := clusterScoped[kind]; ok {
		return
	}
	if slices.Contains(extra, kind) {
		return
	}
	meta := getOrCreateMap(doc, "metadata")
	if existing, _ := meta["namespace"].(string); strings.TrimSpace(existing) != "" {
		return
	}
	meta["namespace"] = ns
}

// getOrCreateMap returns an existing nested map or creates a new one at the given key.
func getOrCreateMap(parent map[string]any, key string) map[string]any {
	if val, ok := parent[key]; ok {
		if m, ok := val.(map[string]any); ok && m != nil {
			return m
		}
	}
	m := make(map[string]any)
	parent[key] = m
	return m
}
