// Package prose handles the structured rich-text documents used as entry
// bodies. Documents are a ProseMirror-style node tree.
package prose

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Node is one node in a document tree. Leaf text nodes carry Text; container
// nodes carry Content.
type Node struct {
	Type    string         `json:"type,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Text    string         `json:"text,omitempty"`
}

// Mark is a formatting annotation on a text node.
type Mark struct {
	Type  string         `json:"type,omitempty"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Parse decodes a raw JSON document body.
func Parse(raw json.RawMessage) (*Node, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty document body")
	}
	var node Node
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("parse document body: %w", err)
	}
	return &node, nil
}

// Marshal re-encodes a document tree, e.g. after image rewriting.
func Marshal(node *Node) (json.RawMessage, error) {
	raw, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("marshal document body: %w", err)
	}
	return raw, nil
}

var blockTypes = map[string]struct{}{
	"paragraph":      {},
	"heading":        {},
	"blockquote":     {},
	"codeBlock":      {},
	"listItem":       {},
	"horizontalRule": {},
}

// PlainText derives the plain-text projection of a document. The transform is
// pure: the same tree always yields the same string.
func PlainText(node *Node) string {
	if node == nil {
		return ""
	}
	var b strings.Builder
	writePlainText(&b, node)
	return strings.TrimRight(b.String(), "\n")
}

func writePlainText(b *strings.Builder, node *Node) {
	switch node.Type {
	case "text":
		b.WriteString(node.Text)
		return
	case "hardBreak":
		b.WriteString("\n")
		return
	}
	for _, child := range node.Content {
		writePlainText(b, child)
	}
	if _, block := blockTypes[node.Type]; block {
		b.WriteString("\n")
	}
}

// WalkImages visits every image node in the tree and replaces its src with
// the value returned by fn. Returning the input leaves the node untouched.
func WalkImages(node *Node, fn func(src string) string) {
	if node == nil {
		return
	}
	if node.Type == "image" && node.Attrs != nil {
		if src, ok := node.Attrs["src"].(string); ok {
			node.Attrs["src"] = fn(src)
		}
	}
	for _, child := range node.Content {
		WalkImages(child, fn)
	}
}

// InlineProxy is the payload carried by an inline-proxy image URL: an
// uploaded-but-unattached image the composer embedded in a draft body.
type InlineProxy struct {
	OrgShortcode       string
	AttachmentPublicID string
	FileName           string
	FileType           string
	Size               int64
}

// ParseInlineProxyURL extracts an InlineProxy from an image src of the form
//
//	<base>/inline-proxy/<orgShortcode>/<attachmentPublicId>/<fileName>?type=<mime>&size=<bytes>
//
// Non-proxy URLs return ok=false and must be passed through unchanged.
func ParseInlineProxyURL(raw string) (InlineProxy, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return InlineProxy{}, false
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	idx := -1
	for i, segment := range segments {
		if segment == "inline-proxy" {
			idx = i
			break
		}
	}
	if idx == -1 || len(segments)-idx != 4 {
		return InlineProxy{}, false
	}
	proxy := InlineProxy{
		OrgShortcode:       segments[idx+1],
		AttachmentPublicID: segments[idx+2],
		FileType:           parsed.Query().Get("type"),
	}
	fileName, err := url.PathUnescape(segments[idx+3])
	if err != nil || fileName == "" {
		return InlineProxy{}, false
	}
	proxy.FileName = fileName
	if proxy.OrgShortcode == "" || proxy.AttachmentPublicID == "" {
		return InlineProxy{}, false
	}
	size, err := strconv.ParseInt(parsed.Query().Get("size"), 10, 64)
	if err != nil || size < 0 {
		return InlineProxy{}, false
	}
	proxy.Size = size
	return proxy, true
}
