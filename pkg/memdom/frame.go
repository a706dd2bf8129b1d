package memdom

import (
	"sync"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/printd"
	"golang.org/x/net/html"
)

const loadBuffer = 16

// FrameOptions control how frames of a Page behave.
type FrameOptions struct {
	// Resolve returns the markup served at url. Returning false marks the
	// document as cross-origin, leaving it inaccessible. Without a resolver
	// every URL loads an empty document.
	Resolve func(url string) (markup string, ok bool)
	// Sandboxed frames never expose their document or window.
	Sandboxed bool
	// ExecCommand handles Document.ExecCommand. Commands are unsupported
	// when nil.
	ExecCommand func(command string) bool
	// Print is called by Window.Print with the frame document.
	Print func(doc *Document)
}

// Frame is an in-memory iframe.
type Frame struct {
	mu         sync.Mutex
	el         *html.Node
	doc        *Document
	win        *Window
	gen        uint64
	accessible bool
	loads      chan printd.LoadEvent
	opts       FrameOptions
}

func newFrame(el *html.Node, opts FrameOptions) *Frame {
	f := &Frame{
		el:         el,
		opts:       opts,
		accessible: true,
		loads:      make(chan printd.LoadEvent, loadBuffer),
	}
	f.doc = NewDocument(printd.BlankURL, Hooks{
		Open:        f.onOpen,
		Close:       f.onClose,
		ExecCommand: opts.ExecCommand,
	})
	f.win = &Window{frame: f}

	src, ok := printd.Attr(el, "src")
	if !ok || src == "" {
		src = printd.BlankURL
	}
	f.SetSrc(src)

	return f
}

func (f *Frame) Element() *html.Node {
	return f.el
}

// SetSrc starts a navigation to url. The navigation completes on its own
// goroutine unless the document is reopened or another navigation starts
// first.
func (f *Frame) SetSrc(url string) {
	f.mu.Lock()
	printd.SetAttr(f.el, "src", url)
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	go f.navigate(gen, url)
}

func (f *Frame) navigate(gen uint64, url string) {
	markup, ok := "", true
	if url != printd.BlankURL && f.opts.Resolve != nil {
		markup, ok = f.opts.Resolve(url)
	}

	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		log.Debugf("navigation to %s superseded", url)
		return
	}
	f.accessible = ok
	f.doc.load(url, markup)
	f.mu.Unlock()

	f.emit(printd.LoadEvent{Generation: gen, URL: url})
}

// onOpen supersedes any pending navigation.
func (f *Frame) onOpen() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.accessible = true
}

func (f *Frame) onClose(doc *Document) {
	f.mu.Lock()
	gen := f.gen
	f.mu.Unlock()

	f.emit(printd.LoadEvent{Generation: gen, URL: doc.URL()})
}

// emit never blocks. Loads are dropped once the buffer is full, which only
// happens when nobody listens.
func (f *Frame) emit(ev printd.LoadEvent) {
	select {
	case f.loads <- ev:
	default:
		log.Warnf("dropping load of %s (generation %d): no listener", ev.URL, ev.Generation)
	}
}

func (f *Frame) ContentDocument() printd.Document {
	if !f.Accessible() {
		return nil
	}
	return f.doc
}

func (f *Frame) ContentWindow() printd.Window {
	if !f.Accessible() {
		return nil
	}
	return f.win
}

func (f *Frame) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

func (f *Frame) Loads() <-chan printd.LoadEvent {
	return f.loads
}

// Accessible reports whether the frame content can be reached.
func (f *Frame) Accessible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accessible && !f.opts.Sandboxed
}

// Document returns the frame document regardless of access restrictions.
func (f *Frame) Document() *Document {
	return f.doc
}

// Window returns the frame window regardless of access restrictions.
func (f *Frame) Window() *Window {
	return f.win
}

// Window is the in-memory browsing context of a Frame.
type Window struct {
	frame  *Frame
	mu     sync.Mutex
	prints int
}

// Print records the request and hands the document to the Print option.
func (w *Window) Print() {
	w.mu.Lock()
	w.prints++
	w.mu.Unlock()

	if w.frame.opts.Print != nil {
		w.frame.opts.Print(w.frame.doc)
	}
}

// Prints returns the number of Print calls.
func (w *Window) Prints() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prints
}
