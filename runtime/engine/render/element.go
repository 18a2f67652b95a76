package render

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/BDNK1/stepflow/runtime"
)

var (
	ErrForbiddenElement = errors.New("element is not allowed")
	ErrVoidElement      = errors.New("void element cannot have children")
	ErrNotRenderable    = errors.New("value is not renderable")
	ErrInvalidArgument  = errors.New("invalid builder argument")
)

var forbiddenElements = map[string]bool{
	"script": true,
	"style":  true,
	"iframe": true,
	"object": true,
	"embed":  true,
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true,
	"track": true, "wbr": true,
}

var urlAttributes = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"xlink:href": true,
}

// Element is an HTML subtree produced by a render step. A fragment is a
// document node whose children render without a wrapper.
type Element struct {
	node *html.Node
}

var _ runtime.Renderable = (*Element)(nil)

func (e *Element) Render(w io.Writer) error {
	return html.Render(w, e.node)
}

func (e *Element) String() string {
	var sb strings.Builder
	if err := e.Render(&sb); err != nil {
		return fmt.Sprintf("<!-- %v -->", err)
	}
	return sb.String()
}

// Tag is empty for text nodes and fragments.
func (e *Element) Tag() string {
	if e.node.Type != html.ElementNode {
		return ""
	}
	return e.node.Data
}

func textElement(s string) *Element {
	return &Element{node: &html.Node{Type: html.TextNode, Data: s}}
}

func newFragment() *Element {
	return &Element{node: &html.Node{Type: html.DocumentNode}}
}

// buildElement implements el(tag, [attrs], children...).
func buildElement(params ...any) (any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: el requires a tag name", ErrInvalidArgument)
	}
	tag, ok := params[0].(string)
	if !ok || strings.TrimSpace(tag) == "" {
		return nil, fmt.Errorf("%w: el tag must be a non-empty string, got %T", ErrInvalidArgument, params[0])
	}
	tag = strings.ToLower(strings.TrimSpace(tag))
	if forbiddenElements[tag] {
		return nil, fmt.Errorf("%w: <%s>", ErrForbiddenElement, tag)
	}

	node := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}

	children := params[1:]
	if len(children) > 0 {
		if attrs, ok := children[0].(map[string]any); ok {
			node.Attr = buildAttributes(attrs)
			children = children[1:]
		}
	}

	if err := appendChildren(node, children); err != nil {
		return nil, err
	}
	if voidElements[tag] && node.FirstChild != nil {
		return nil, fmt.Errorf("%w: <%s>", ErrVoidElement, tag)
	}
	return &Element{node: node}, nil
}

func buildText(params ...any) (any, error) {
	var sb strings.Builder
	for _, p := range params {
		sb.WriteString(displayString(p))
	}
	return textElement(sb.String()), nil
}

func buildFragment(params ...any) (any, error) {
	frag := newFragment()
	if err := appendChildren(frag.node, params); err != nil {
		return nil, err
	}
	return frag, nil
}

// buildClasses implements classes(...). Maps contribute their keys with
// truthy values, in sorted order; lists and strings contribute non-empty
// entries as given.
func buildClasses(params ...any) (any, error) {
	var names []string
	for _, p := range params {
		names = append(names, classNames(p)...)
	}
	return strings.Join(names, " "), nil
}

func classNames(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return strings.Fields(val)
	case []any:
		var names []string
		for _, item := range val {
			names = append(names, classNames(item)...)
		}
		return names
	case map[string]any:
		var names []string
		for name, on := range val {
			if truthy(on) {
				names = append(names, name)
			}
		}
		slices.Sort(names)
		return names
	default:
		return []string{displayString(val)}
	}
}

// buildAttributes drops event handler attributes and javascript: URLs.
// Keys are emitted in sorted order.
func buildAttributes(attrs map[string]any) []html.Attribute {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out []html.Attribute
	for _, key := range keys {
		name := strings.ToLower(strings.TrimSpace(key))
		if name == "" || strings.HasPrefix(name, "on") {
			continue
		}

		var val string
		switch v := attrs[key].(type) {
		case nil:
			continue
		case bool:
			if !v {
				continue
			}
		case []any, map[string]any:
			val = strings.Join(classNames(v), " ")
		default:
			val = displayString(v)
		}

		if urlAttributes[name] && isScriptURL(val) {
			continue
		}
		out = append(out, html.Attribute{Key: name, Val: val})
	}
	return out
}

func isScriptURL(s string) bool {
	s = strings.ToLower(strings.Join(strings.Fields(s), ""))
	return strings.HasPrefix(s, "javascript:") || strings.HasPrefix(s, "vbscript:")
}

func appendChildren(parent *html.Node, children []any) error {
	for _, child := range children {
		switch c := child.(type) {
		case nil:
			continue
		case *Element:
			appendElement(parent, c)
		case []any:
			if err := appendChildren(parent, c); err != nil {
				return err
			}
		case map[string]any:
			return fmt.Errorf("%w: attributes must directly follow the tag", ErrInvalidArgument)
		default:
			parent.AppendChild(&html.Node{Type: html.TextNode, Data: displayString(c)})
		}
	}
	return nil
}

// appendElement always appends copies, so one element value can be used
// in several places. Fragments contribute copies of their children.
func appendElement(parent *html.Node, e *Element) {
	if e.node.Type == html.DocumentNode {
		for c := e.node.FirstChild; c != nil; c = c.NextSibling {
			parent.AppendChild(cloneNode(c))
		}
		return
	}
	parent.AppendChild(cloneNode(e.node))
}

func cloneNode(n *html.Node) *html.Node {
	m := &html.Node{
		Type:     n.Type,
		DataAtom: n.DataAtom,
		Data:     n.Data,
		Attr:     slices.Clone(n.Attr),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		m.AppendChild(cloneNode(c))
	}
	return m
}

// toElement converts a program result into an Element. Strings become text
// and lists become fragments.
func toElement(v any) (*Element, error) {
	switch val := v.(type) {
	case *Element:
		return val, nil
	case string:
		return textElement(val), nil
	case []any:
		frag := newFragment()
		if err := appendChildren(frag.node, val); err != nil {
			return nil, err
		}
		return frag, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotRenderable, v)
	}
}

func displayString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
