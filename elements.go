package printd

import (
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// iframeStyle keeps the frame out of the layout and out of sight.
const iframeStyle = "visibility:hidden;width:0;height:0;position:absolute;z-index:-9999;bottom:0;"

// CreateStyle returns a style element holding cssText.
func CreateStyle(doc Document, cssText string) *html.Node {
	style := doc.CreateElement("style")
	SetAttr(style, "type", "text/css")
	style.AppendChild(doc.CreateTextNode(cssText))
	return style
}

// CreateStyleByURL returns a stylesheet link element pointing at url.
func CreateStyleByURL(doc Document, url string) *html.Node {
	link := doc.CreateElement("link")
	SetAttr(link, "type", "text/css")
	SetAttr(link, "rel", "stylesheet")
	SetAttr(link, "href", url)
	return link
}

// CreateScriptByURL returns a script element loading url.
func CreateScriptByURL(doc Document, url string) *html.Node {
	script := doc.CreateElement("script")
	SetAttr(script, "type", "text/javascript")
	SetAttr(script, "src", url)
	return script
}

// CreateIFrame attaches a hidden blank iframe to parent, or to the page body
// when parent is nil.
func CreateIFrame(page Page, parent *html.Node) (Frame, error) {
	if parent == nil {
		parent = page.Body()
	}
	if parent == nil {
		return nil, fmt.Errorf("page has no body to attach the iframe to")
	}

	el := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Iframe,
		Data:     atom.Iframe.String(),
	}
	SetAttr(el, "src", BlankURL)
	SetAttr(el, "style", iframeStyle)
	SetAttr(el, "width", "0")
	SetAttr(el, "height", "0")
	SetAttr(el, "wmode", "opaque")

	frame, err := page.AttachFrame(parent, el)
	if err != nil {
		return nil, fmt.Errorf("error attaching iframe: %w", err)
	}
	return frame, nil
}
