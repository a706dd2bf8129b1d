package printd

import (
	"golang.org/x/net/html"
)

// Skeleton is the markup written into the iframe document before any
// resources or content are appended.
const Skeleton = `<!DOCTYPE html><html><head><meta charset="utf-8"></head><body></body></html>`

// BlankURL is the navigation target of an empty frame.
const BlankURL = "about:blank"

// Document is the content document of a frame.
type Document interface {
	// Open discards the current content and aborts any pending navigation
	// of the owning frame.
	Open()
	Write(markup string)
	// Close finishes the document. The owning frame reports a load once
	// the document and its subresources are done.
	Close()
	CreateElement(tag string) *html.Node
	CreateTextNode(data string) *html.Node
	Head() *html.Node
	Body() *html.Node
	// ExecCommand runs a legacy editing command and reports whether the
	// host accepted it.
	ExecCommand(command string) bool
}

// Window is the browsing context of a frame.
type Window interface {
	Print()
}

// LoadEvent marks the completion of a frame navigation or document write.
type LoadEvent struct {
	Generation uint64
	URL        string
}

// Frame is an iframe attached to a Page.
type Frame interface {
	// Element returns the iframe element node.
	Element() *html.Node
	// SetSrc starts a navigation and returns immediately.
	SetSrc(url string)
	// ContentDocument returns nil when the document cannot be accessed.
	ContentDocument() Document
	// ContentWindow returns nil when the window cannot be accessed.
	ContentWindow() Window
	// Generation is incremented by every SetSrc and Document.Open.
	Generation() uint64
	Loads() <-chan LoadEvent
}

// Page is the document an iframe is attached to.
type Page interface {
	Body() *html.Node
	AttachFrame(parent, iframe *html.Node) (Frame, error)
}

// CloneNode returns a copy of n. Children are copied when deep is set.
func CloneNode(n *html.Node, deep bool) *html.Node {
	if n == nil {
		return nil
	}
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      make([]html.Attribute, len(n.Attr)),
	}
	copy(clone.Attr, n.Attr)

	if deep {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			clone.AppendChild(CloneNode(c, true))
		}
	}
	return clone
}

// cloneWithout deep copies n, leaving out skip and everything below it.
func cloneWithout(n, skip *html.Node) *html.Node {
	clone := CloneNode(n, false)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c != skip {
			clone.AppendChild(cloneWithout(c, skip))
		}
	}
	return clone
}

// AppendChild moves child under parent, detaching it from any previous parent.
func AppendChild(parent, child *html.Node) {
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.AppendChild(child)
}

// SetAttr sets or replaces the attribute key on n.
func SetAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Attr returns the value of the attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
