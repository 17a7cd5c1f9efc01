// Package document reads and rewrites the structured header of markdown
// documents. The manifest keeps its component forest there.
package document

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store gives access to the frontmatter of documents addressed by path
type Store interface {
	// ReadFrontmatter returns the frontmatter of doc. A missing document
	// yields an error wrapping store.ErrNotExist.
	ReadFrontmatter(ctx context.Context, doc string) (map[string]any, error)
	// MutateFrontmatter loads the frontmatter of doc, passes it to fn and
	// writes the result back. A missing document is created.
	MutateFrontmatter(ctx context.Context, doc string, fn func(fm map[string]any) error) error
}

const delimiter = "---"

// split separates a document into its frontmatter block and body.
// ok is false when the document has no frontmatter.
func split(text string) (front, body string, ok bool) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(text, delimiter+"\n") {
		return "", text, false
	}
	rest := text[len(delimiter)+1:]

	if rest == delimiter || strings.HasPrefix(rest, delimiter+"\n") {
		return "", strings.TrimPrefix(strings.TrimPrefix(rest, delimiter), "\n"), true
	}

	end := strings.Index(rest, "\n"+delimiter+"\n")
	if end < 0 {
		if !strings.HasSuffix(rest, "\n"+delimiter) {
			return "", text, false
		}
		end = len(rest) - len(delimiter) - 1
	}
	front = rest[:end+1]
	body = strings.TrimPrefix(rest[end+1+len(delimiter):], "\n")
	return front, body, true
}

// decode parses a frontmatter block. An empty block yields an empty map.
func decode(front string) (map[string]any, error) {
	fm := make(map[string]any)
	if strings.TrimSpace(front) == "" {
		return fm, nil
	}
	if err := yaml.Unmarshal([]byte(front), &fm); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	if fm == nil {
		fm = make(map[string]any)
	}
	return fm, nil
}

// encode renders fm with sorted keys. Nil values are written as bare keys
// ("components:") rather than "null".
func encode(fm map[string]any) (string, error) {
	if len(fm) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(fm))
	for k := range fm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		value := &yaml.Node{}
		if fm[k] == nil {
			value.Kind = yaml.ScalarNode
			value.Tag = "!!null"
		} else if err := value.Encode(fm[k]); err != nil {
			return "", fmt.Errorf("failed to encode frontmatter key %s: %w", k, err)
		}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, value)
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	return string(out), nil
}

// join assembles a document from frontmatter and body
func join(front, body string) string {
	var b strings.Builder
	b.WriteString(delimiter + "\n")
	b.WriteString(front)
	if front != "" && !strings.HasSuffix(front, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(delimiter + "\n")
	b.WriteString(body)
	return b.String()
}
