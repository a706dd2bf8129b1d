package printd

import (
	"sync"

	"github.com/root4loot/goutils/log"
	"golang.org/x/net/html"
)

// Printd prints elements and URLs through a hidden iframe.
type Printd struct {
	Options *Options
	frame   Frame
	mutex   sync.Mutex

	busy     bool       // a print cycle is waiting for its load
	awaiting uint64     // frame generation the cycle waits for
	callback Callback   // callback of the cycle in flight
	elCopy   *html.Node // clone handed to the callback

	quit      chan struct{}
	closeOnce sync.Once
}

// Options contains options for the controller
type Options struct {
	Parent  *html.Node // node the iframe is attached to (default: page body)
	Silence bool       // Silence output
	Verbose bool       // Verbose logging
}

// PrintOptions contains the resources injected into the iframe document
// before the element and the callback notified once it has loaded.
type PrintOptions struct {
	CSSText    string   // style element content
	CSSURLs    []string // stylesheets, in order
	ScriptURLs []string // scripts, in order
	Callback   Callback // replaces the automatic print when set
}

// Event is passed to a Callback once the iframe content has loaded.
type Event struct {
	IFrame      Frame
	Element     *html.Node // clone of the printed element, nil for URLs
	LaunchPrint func()
}

// Callback is invoked instead of printing when the iframe content has loaded.
// The print dialog is only opened if the callback calls LaunchPrint.
type Callback func(Event)

func init() {
	log.Init("printd")
}

// DefaultOptions returns default options
func DefaultOptions() *Options {
	return &Options{}
}

// New creates a controller whose iframe is attached to parent, or to the
// page body when parent is nil.
func New(page Page, parent *html.Node) (*Printd, error) {
	options := DefaultOptions()
	options.Parent = parent
	return newPrintd(page, options)
}

// NewWithOptions creates a controller with the specified options
func NewWithOptions(page Page, options Options) (*Printd, error) {
	SetLogLevel(&options)
	return newPrintd(page, &options)
}

func newPrintd(page Page, options *Options) (*Printd, error) {
	frame, err := CreateIFrame(page, options.Parent)
	if err != nil {
		return nil, err
	}

	p := &Printd{
		Options: options,
		frame:   frame,
		quit:    make(chan struct{}),
	}
	go p.listen()

	log.Debug("iframe attached, waiting for print requests")
	return p, nil
}

// Print clones el into the iframe document, injects the resources in opts and
// prints once the document has loaded. The request is dropped when another
// print is still loading.
func (p *Printd) Print(el *html.Node, opts *PrintOptions) {
	if opts == nil {
		opts = &PrintOptions{}
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.busy {
		log.Debug("print request dropped: another print is loading")
		return
	}

	doc := p.frame.ContentDocument()
	if doc == nil || p.frame.ContentWindow() == nil {
		log.Debug("print request dropped: iframe content is not accessible")
		return
	}

	if el == nil {
		return
	}

	p.frame.SetSrc(BlankURL)
	// an ancestor of the iframe is printed without it
	p.elCopy = cloneWithout(el, p.frame.Element())
	p.busy = true
	p.callback = opts.Callback

	doc.Open()
	p.awaiting = p.frame.Generation()
	doc.Write(Skeleton)

	head, body := doc.Head(), doc.Body()
	if opts.CSSText != "" {
		AppendChild(head, CreateStyle(doc, opts.CSSText))
	}
	for _, url := range opts.CSSURLs {
		AppendChild(head, CreateStyleByURL(doc, url))
	}

	AppendChild(body, p.elCopy)

	for _, url := range opts.ScriptURLs {
		AppendChild(body, CreateScriptByURL(doc, url))
	}

	doc.Close()
}

// PrintURL navigates the iframe to url and prints it once loaded. The
// request is dropped when another print is still loading.
func (p *Printd) PrintURL(url string, callback Callback) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.busy {
		log.Debugf("print request for %s dropped: another print is loading", url)
		return
	}

	p.busy = true
	p.callback = callback
	p.elCopy = nil

	p.frame.SetSrc(url)
	p.awaiting = p.frame.Generation()
}

// GetIFrame returns the iframe owned by the controller.
func (p *Printd) GetIFrame() Frame {
	return p.frame
}

// Busy reports whether a print is loading. Print and PrintURL are no-ops
// while it returns true.
func (p *Printd) Busy() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.busy
}

// Close stops listening for iframe loads. The iframe stays attached.
func (p *Printd) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})
}

func (p *Printd) listen() {
	loads := p.frame.Loads()
	for {
		select {
		case <-p.quit:
			return
		case ev, ok := <-loads:
			if !ok {
				return
			}
			p.onLoad(ev)
		}
	}
}

func (p *Printd) onLoad(ev LoadEvent) {
	p.mutex.Lock()
	if !p.busy || ev.Generation != p.awaiting {
		p.mutex.Unlock()
		log.Debugf("ignoring load of %s (generation %d)", ev.URL, ev.Generation)
		return
	}

	p.busy = false
	callback, elCopy := p.callback, p.elCopy
	p.callback, p.elCopy = nil, nil
	p.mutex.Unlock()

	doc := p.frame.ContentDocument()
	win := p.frame.ContentWindow()
	if doc == nil || win == nil {
		log.Debugf("content of %s is not accessible, not printing", ev.URL)
		return
	}

	launch := func() { launchPrint(doc, win) }

	if callback != nil {
		callback(Event{
			IFrame:      p.frame,
			Element:     elCopy,
			LaunchPrint: launch,
		})
		return
	}

	launch()
}

// launchPrint tries the legacy print command first and falls back to the
// window print dialog.
func launchPrint(doc Document, win Window) {
	if !doc.ExecCommand("print") {
		win.Print()
	}
}

// SetLogLevel sets the log level based on the options
func SetLogLevel(options *Options) {
	if options.Silence {
		log.SetLevel(log.FatalLevel)
	} else if options.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
