package directory

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Node is a generic XML document tree: every response body is parsed into
// one of these regardless of the schema the particular endpoint uses,
// mirroring the reference client's untyped dict-of-dicts document model.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Find returns the first direct child named name, or nil.
func (n *Node) Find(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Path walks a dotted sequence of child names, returning nil if any step
// is missing.
func (n *Node) Path(names ...string) *Node {
	cur := n
	for _, name := range names {
		cur = cur.Find(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// TrimmedText returns the node's text content with surrounding whitespace
// removed; directory responses are pretty-printed and carry indentation
// inside leaf elements.
func (n *Node) TrimmedText() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Text)
}

// ParseXML parses an XML document into a Node tree. An empty or
// whitespace-only document parses to a nil tree with no error, matching
// replies like a provisional `100 Continue` that carry no body.
func ParseXML(body string) (*Node, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}

	dec := xml.NewDecoder(bytes.NewReader([]byte(body)))
	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name.Local, Attrs: make(map[string]string)}
			for _, a := range t.Attr {
				node.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			} else {
				root = node
			}
			stack = append(stack, node)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("directory: unbalanced xml body")
			}
			stack = stack[:len(stack)-1]
		}
	}

	if root == nil {
		return nil, fmt.Errorf("directory: empty or unparsable xml body")
	}
	return root, nil
}
