package rodhost

import (
	"sync"

	"github.com/go-rod/rod"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/printd"
	"github.com/root4loot/printd/pkg/memdom"
	"golang.org/x/net/html"
)

// armLoad stores a promise on the iframe that resolves on its next load.
const armLoad = `this.__printdLoad = new Promise(r => this.addEventListener('load', () => r(true), { once: true }))`

// Frame is an iframe in the browser page. Its document is built in memory
// and written into the browser when closed.
type Frame struct {
	host  *Host
	el    *rod.Element
	node  *html.Node
	doc   *memdom.Document
	win   *Window
	mu    sync.Mutex
	gen   uint64
	loads chan printd.LoadEvent
}

func newFrame(host *Host, el *rod.Element, node *html.Node) *Frame {
	f := &Frame{
		host:  host,
		el:    el,
		node:  node,
		gen:   1,
		loads: make(chan printd.LoadEvent, 16),
	}
	f.doc = memdom.NewDocument(printd.BlankURL, memdom.Hooks{
		Open:        f.onOpen,
		Close:       f.flush,
		ExecCommand: f.execCommand,
	})
	f.win = &Window{frame: f}

	// the load promise was armed before the iframe was attached
	go f.await(1, printd.BlankURL)

	return f
}

func (f *Frame) Element() *html.Node {
	return f.node
}

func (f *Frame) SetSrc(url string) {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	printd.SetAttr(f.node, "src", url)
	f.mu.Unlock()

	_, err := f.el.Eval(`(u) => { `+armLoad+`; this.src = u }`, url)
	if err != nil {
		log.Warnf("Could not navigate iframe to %s: %v", url, err)
		return
	}

	go f.await(gen, url)
}

func (f *Frame) onOpen() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
}

// flush writes the in-memory document into the browser iframe.
func (f *Frame) flush(doc *memdom.Document) {
	markup, err := doc.HTML()
	if err != nil {
		log.Warnf("Could not render iframe document: %v", err)
		return
	}

	f.mu.Lock()
	gen := f.gen
	f.mu.Unlock()

	res, err := f.el.Eval(`(markup) => {
		const d = this.contentDocument
		if (!d) return false
		`+armLoad+`
		d.open()
		d.write(markup)
		d.close()
		return true
	}`, markup)
	if err != nil {
		log.Warnf("Could not write iframe document: %v", err)
		return
	}
	if !res.Value.Bool() {
		log.Warn("Could not write iframe document: content document is not accessible")
		return
	}

	go f.await(gen, doc.URL())
}

// await waits for the armed load promise and reports the load.
func (f *Frame) await(gen uint64, url string) {
	el := f.el
	if f.host.Options.Timeout > 0 {
		el = el.Timeout(f.host.Options.Timeout)
	}

	if _, err := el.Eval(`() => this.__printdLoad`); err != nil {
		log.Warnf("No load reported for %s: %v", url, err)
		return
	}

	select {
	case f.loads <- printd.LoadEvent{Generation: gen, URL: url}:
	default:
		log.Warnf("dropping load of %s (generation %d): no listener", url, gen)
	}
}

func (f *Frame) accessible() bool {
	res, err := f.el.Eval(`() => {
		try {
			return !!this.contentDocument && !!this.contentWindow
		} catch (e) {
			return false
		}
	}`)
	if err != nil {
		log.Debugf("Could not inspect iframe: %v", err)
		return false
	}
	return res.Value.Bool()
}

func (f *Frame) ContentDocument() printd.Document {
	if !f.accessible() {
		return nil
	}
	return f.doc
}

func (f *Frame) ContentWindow() printd.Window {
	if !f.accessible() {
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

func (f *Frame) execCommand(command string) bool {
	if command == "print" && f.host.Options.Print != nil {
		return false
	}

	res, err := f.el.Eval(`(c) => {
		try {
			return this.contentDocument.execCommand(c, false, null)
		} catch (e) {
			return false
		}
	}`, command)
	if err != nil {
		log.Debugf("execCommand %s failed: %v", command, err)
		return false
	}
	return res.Value.Bool()
}

// HTML serializes the document currently shown by the browser iframe.
func (f *Frame) HTML() (string, error) {
	res, err := f.el.Eval(`() => {
		const d = this.contentDocument
		const doctype = d.doctype ? new XMLSerializer().serializeToString(d.doctype) : ''
		return doctype + d.documentElement.outerHTML
	}`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// Window is the browsing context of a Frame.
type Window struct {
	frame *Frame
}

// Print hands the frame document to the Print option, or opens the
// browser print dialog without waiting for it.
func (w *Window) Print() {
	sink := w.frame.host.Options.Print
	if sink == nil {
		go func() {
			if _, err := w.frame.el.Eval(`() => this.contentWindow.print()`); err != nil {
				log.Warnf("Could not open print dialog: %v", err)
			}
		}()
		return
	}

	markup, err := w.frame.HTML()
	if err != nil {
		log.Warnf("Could not read iframe document: %v", err)
		return
	}
	if err := sink(markup); err != nil {
		log.Errorf("Print failed: %v", err)
	}
}
