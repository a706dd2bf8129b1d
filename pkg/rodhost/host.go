// Package rodhost runs printd against a real browser page driven by go-rod.
package rodhost

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/printd"
	"golang.org/x/net/html"
)

// Options contains options for the browser host
type Options struct {
	ControlURL              string        // DevTools URL of a running browser, launches one when empty
	Headless                bool          // Run in headless mode
	NoSandbox               bool          // Required when running as root or in containers
	IgnoreCertificateErrors bool          // Ignore certificate errors
	DisableHTTP2            bool          // Disable HTTP2
	UserAgent               string        // User agent
	HTML                    string        // Content of the host page
	URL                     string        // Location of the host page when HTML is empty
	Timeout                 time.Duration // Timeout for each frame load
	// Print receives the serialized frame document instead of the browser
	// print dialog. The legacy print command is reported unsupported while
	// it is set.
	Print func(markup string) error
}

// Host is a browser page that printd frames are attached to.
type Host struct {
	Options *Options
	browser *rod.Browser
	page    *rod.Page
	root    *html.Node // parsed copy of the host page
	frames  int
	mutex   sync.Mutex
}

// DefaultOptions returns default options
func DefaultOptions() *Options {
	return &Options{
		Headless:                true,
		IgnoreCertificateErrors: true,
		DisableHTTP2:            true,
		URL:                     printd.BlankURL,
		Timeout:                 30 * time.Second,
	}
}

// New launches a browser with default options.
func New() (*Host, error) {
	return NewWithOptions(*DefaultOptions())
}

// NewWithOptions launches or connects to a browser and opens the host page.
func NewWithOptions(options Options) (*Host, error) {
	controlURL := options.ControlURL
	if controlURL == "" {
		var err error
		if controlURL, err = launch(&options); err != nil {
			return nil, err
		}
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("error connecting to browser: %w", err)
	}

	h := &Host{
		Options: &options,
		browser: browser,
	}

	if err := h.openPage(); err != nil {
		_ = browser.Close()
		return nil, err
	}

	return h, nil
}

func launch(options *Options) (string, error) {
	l := launcher.New().
		Headless(options.Headless).
		NoSandbox(options.NoSandbox)

	if path, found := launcher.LookPath(); found {
		l = l.Bin(path)
	}

	if options.UserAgent != "" {
		l.Set("user-agent", options.UserAgent)
	}

	if options.IgnoreCertificateErrors {
		l.Set("ignore-certificate-errors", "true")
	}

	if options.DisableHTTP2 {
		l.Set("disable-http2", "true")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("error launching browser: %w", err)
	}
	log.Debugf("browser launched at %s", controlURL)
	return controlURL, nil
}

func (h *Host) openPage() error {
	page, err := h.browser.Page(proto.TargetCreateTarget{URL: printd.BlankURL})
	if err != nil {
		return fmt.Errorf("error opening page: %w", err)
	}
	h.page = page

	switch {
	case h.Options.HTML != "":
		if err := page.SetDocumentContent(h.Options.HTML); err != nil {
			return fmt.Errorf("error setting page content: %w", err)
		}
	case h.Options.URL != "" && h.Options.URL != printd.BlankURL:
		if err := page.Navigate(h.Options.URL); err != nil {
			return fmt.Errorf("error navigating to %s: %w", h.Options.URL, err)
		}
	}

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("error waiting for page load: %w", err)
	}

	markup, err := page.HTML()
	if err != nil {
		return fmt.Errorf("error reading page: %w", err)
	}
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("error parsing page: %w", err)
	}
	h.root = root

	return nil
}

// Root returns the parsed copy of the host page. Elements found in it can
// be printed, and its body or elements with an id can parent frames.
func (h *Host) Root() *html.Node {
	return h.root
}

// Page returns the browser page.
func (h *Host) Page() *rod.Page {
	return h.page
}

func (h *Host) Body() *html.Node {
	return htmlquery.FindOne(h.root, "//body")
}

// AttachFrame creates iframe inside parent in the browser page.
func (h *Host) AttachFrame(parent, iframe *html.Node) (printd.Frame, error) {
	if parent == nil || iframe == nil {
		return nil, fmt.Errorf("parent and iframe are required")
	}

	selector, err := h.selector(parent)
	if err != nil {
		return nil, err
	}

	h.mutex.Lock()
	h.frames++
	id, ok := printd.Attr(iframe, "id")
	if !ok || id == "" {
		id = fmt.Sprintf("printd-frame-%d", h.frames)
		printd.SetAttr(iframe, "id", id)
	}
	h.mutex.Unlock()

	attrs := make(map[string]string, len(iframe.Attr))
	for _, attr := range iframe.Attr {
		attrs[attr.Key] = attr.Val
	}

	_, err = h.page.Eval(`(selector, attrs) => {
		const parent = document.querySelector(selector)
		if (!parent) throw new Error('no element matches ' + selector)
		const el = document.createElement('iframe')
		for (const [k, v] of Object.entries(attrs)) el.setAttribute(k, v)
		el.__printdLoad = new Promise(r => el.addEventListener('load', () => r(true), { once: true }))
		parent.appendChild(el)
	}`, selector, attrs)
	if err != nil {
		return nil, fmt.Errorf("error creating iframe: %w", err)
	}

	el, err := h.page.Element("#" + id)
	if err != nil {
		return nil, fmt.Errorf("error finding iframe %s: %w", id, err)
	}

	printd.AppendChild(parent, iframe)

	return newFrame(h, el, iframe), nil
}

func (h *Host) selector(n *html.Node) (string, error) {
	if n == h.Body() {
		return "body", nil
	}
	if id, ok := printd.Attr(n, "id"); ok && id != "" {
		return "#" + id, nil
	}
	return "", fmt.Errorf("parent must be the body or carry an id")
}

// Close closes the browser.
func (h *Host) Close() error {
	return h.browser.Close()
}
