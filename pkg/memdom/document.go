package memdom

import (
	"bytes"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Hooks connect a Document to the frame that owns it.
type Hooks struct {
	Open        func()                    // called after the document is reopened
	Close       func(doc *Document)       // called once parsing is finished
	ExecCommand func(command string) bool // legacy commands, unsupported when nil
}

// Document is an in-memory HTML document.
type Document struct {
	mu     sync.Mutex
	url    string
	root   *html.Node
	markup strings.Builder // everything written since Open
	ready  bool
	hooks  Hooks
}

// NewDocument returns a finished, empty document located at url.
func NewDocument(url string, hooks Hooks) *Document {
	d := &Document{hooks: hooks}
	d.load(url, "")
	return d
}

// load replaces the document with the parse of markup.
func (d *Document) load(url, markup string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.url = url
	d.markup.Reset()
	d.root = parse(markup)
	d.ready = true
}

// Open discards the document content. The Open hook runs before anything is
// discarded.
func (d *Document) Open() {
	if d.hooks.Open != nil {
		d.hooks.Open()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.markup.Reset()
	d.root = &html.Node{Type: html.DocumentNode}
	d.ready = false
}

// Write appends markup and reparses the document. Nodes appended since the
// previous Write are lost.
func (d *Document) Write(markup string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.markup.WriteString(markup)
	d.root = parse(d.markup.String())
}

// Close finishes parsing. Closing a finished document does nothing.
func (d *Document) Close() {
	d.mu.Lock()
	if d.ready {
		d.mu.Unlock()
		return
	}
	d.ready = true
	d.mu.Unlock()

	if d.hooks.Close != nil {
		d.hooks.Close(d)
	}
}

func (d *Document) CreateElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Lookup([]byte(tag)),
		Data:     tag,
	}
}

func (d *Document) CreateTextNode(data string) *html.Node {
	return &html.Node{
		Type: html.TextNode,
		Data: data,
	}
}

func (d *Document) Head() *html.Node {
	return d.find("//head")
}

func (d *Document) Body() *html.Node {
	return d.find("//body")
}

// ExecCommand reports false unless the owning frame supports command.
func (d *Document) ExecCommand(command string) bool {
	if d.hooks.ExecCommand == nil {
		return false
	}
	return d.hooks.ExecCommand(command)
}

// URL returns the location of the document.
func (d *Document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root
}

// Ready reports whether the document has been closed.
func (d *Document) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// HTML renders the document.
func (d *Document) HTML() (string, error) {
	return Render(d.Root())
}

func (d *Document) find(expr string) *html.Node {
	root := d.Root()
	if root == nil {
		return nil
	}
	return htmlquery.FindOne(root, expr)
}

// Render serializes n and its descendants.
func Render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func parse(markup string) *html.Node {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		// only reader errors are reported, a string reader has none
		return &html.Node{Type: html.DocumentNode}
	}
	return root
}
