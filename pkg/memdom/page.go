// Package memdom is an in-memory host for printd. Documents are
// golang.org/x/net/html trees and frame loads are delivered asynchronously,
// the way a browser would deliver them.
package memdom

import (
	"fmt"
	"io"
	"sync"

	"github.com/antchfx/htmlquery"
	"github.com/root4loot/printd"
	"golang.org/x/net/html"
)

// Page is an in-memory parent document.
type Page struct {
	mu     sync.Mutex
	root   *html.Node
	opts   FrameOptions
	frames []*Frame
}

// NewPage returns an empty page with default frame options.
func NewPage() *Page {
	return NewPageWithOptions(FrameOptions{})
}

// NewPageWithOptions returns an empty page whose frames use opts.
func NewPageWithOptions(opts FrameOptions) *Page {
	return &Page{
		root: parse(printd.Skeleton),
		opts: opts,
	}
}

// ParsePage reads a page from r.
func ParsePage(r io.Reader, opts FrameOptions) (*Page, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("error parsing page: %w", err)
	}
	return &Page{root: root, opts: opts}, nil
}

// Root returns the document node of the page.
func (p *Page) Root() *html.Node {
	return p.root
}

func (p *Page) Body() *html.Node {
	return htmlquery.FindOne(p.root, "//body")
}

// AttachFrame appends iframe to parent and starts loading its src.
func (p *Page) AttachFrame(parent, iframe *html.Node) (printd.Frame, error) {
	if parent == nil || iframe == nil {
		return nil, fmt.Errorf("parent and iframe are required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	printd.AppendChild(parent, iframe)
	f := newFrame(iframe, p.opts)
	p.frames = append(p.frames, f)

	return f, nil
}

// Frames returns the frames attached to the page.
func (p *Page) Frames() []*Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Frame(nil), p.frames...)
}
