package memdom

import (
	"strings"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/root4loot/printd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/net/html"
)

func nextLoad(t *testing.T, f *Frame) printd.LoadEvent {
	t.Helper()
	select {
	case ev := <-f.Loads():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no load event")
	}
	return printd.LoadEvent{}
}

func attach(t *testing.T, page *Page) *Frame {
	t.Helper()
	iframe := &html.Node{Type: html.ElementNode, Data: "iframe"}
	printd.SetAttr(iframe, "src", printd.BlankURL)
	f, err := page.AttachFrame(page.Body(), iframe)
	require.NoError(t, err)
	return f.(*Frame)
}

func TestDocumentWrite(t *testing.T) {
	doc := NewDocument(printd.BlankURL, Hooks{})
	require.True(t, doc.Ready())
	require.NotNil(t, doc.Body())

	doc.Open()
	assert.False(t, doc.Ready())
	assert.Nil(t, doc.Body())

	doc.Write(`<!DOCTYPE html><html><head>`)
	doc.Write(`<title>t</title></head><body><p id="x">hi</p></body></html>`)
	doc.Close()

	assert.True(t, doc.Ready())
	p := htmlquery.FindOne(doc.Body(), "//p[@id='x']")
	require.NotNil(t, p)
	assert.Equal(t, "hi", htmlquery.InnerText(p))
	assert.Equal(t, "t", htmlquery.InnerText(htmlquery.FindOne(doc.Head(), "//title")))
}

func TestDocumentCloseOnce(t *testing.T) {
	closes := 0
	doc := NewDocument(printd.BlankURL, Hooks{Close: func(*Document) { closes++ }})

	doc.Close()
	assert.Equal(t, 0, closes)

	doc.Open()
	doc.Write(printd.Skeleton)
	doc.Close()
	doc.Close()
	assert.Equal(t, 1, closes)
}

func TestDocumentCreate(t *testing.T) {
	doc := NewDocument(printd.BlankURL, Hooks{})

	el := doc.CreateElement("DIV")
	assert.Equal(t, html.ElementNode, el.Type)
	assert.Equal(t, "div", el.Data)

	text := doc.CreateTextNode("a < b")
	el.AppendChild(text)

	out, err := Render(el)
	require.NoError(t, err)
	assert.Equal(t, "<div>a &lt; b</div>", out)
}

func TestDocumentExecCommand(t *testing.T) {
	assert.False(t, NewDocument(printd.BlankURL, Hooks{}).ExecCommand("print"))

	doc := NewDocument(printd.BlankURL, Hooks{ExecCommand: func(c string) bool { return c == "print" }})
	assert.True(t, doc.ExecCommand("print"))
	assert.False(t, doc.ExecCommand("copy"))
}

func TestAttachFrameLoadsSrc(t *testing.T) {
	page := NewPage()
	f := attach(t, page)

	ev := nextLoad(t, f)
	assert.Equal(t, uint64(1), ev.Generation)
	assert.Equal(t, printd.BlankURL, ev.URL)
	assert.Len(t, page.Frames(), 1)
	assert.Same(t, page.Body(), f.Element().Parent)
}

func TestAttachFrameRequiresNodes(t *testing.T) {
	_, err := NewPage().AttachFrame(nil, &html.Node{Type: html.ElementNode, Data: "iframe"})
	assert.Error(t, err)
}

func TestSetSrcResolves(t *testing.T) {
	page := NewPageWithOptions(FrameOptions{
		Resolve: func(url string) (string, bool) {
			return `<p>` + url + `</p>`, true
		},
	})
	f := attach(t, page)
	nextLoad(t, f)

	f.SetSrc("https://example.test/a")
	assert.Equal(t, "https://example.test/a", htmlquery.SelectAttr(f.Element(), "src"))

	ev := nextLoad(t, f)
	assert.Equal(t, uint64(2), ev.Generation)
	assert.Equal(t, "https://example.test/a", ev.URL)
	assert.Equal(t, "https://example.test/a", htmlquery.InnerText(f.Document().Body()))
	assert.NotNil(t, f.ContentDocument())
}

func TestCrossOriginFrameInaccessible(t *testing.T) {
	page := NewPageWithOptions(FrameOptions{
		Resolve: func(url string) (string, bool) { return "", !strings.Contains(url, "other") },
	})
	f := attach(t, page)
	nextLoad(t, f)
	assert.NotNil(t, f.ContentDocument())

	f.SetSrc("https://other.example.test/")
	nextLoad(t, f)
	assert.Nil(t, f.ContentDocument())
	assert.Nil(t, f.ContentWindow())
}

func TestSandboxedFrame(t *testing.T) {
	f := attach(t, NewPageWithOptions(FrameOptions{Sandboxed: true}))
	assert.Nil(t, f.ContentDocument())
	assert.Nil(t, f.ContentWindow())
	assert.NotNil(t, f.Document())
}

func TestOpenSupersedesNavigation(t *testing.T) {
	resolving := make(chan struct{})
	release := make(chan struct{})
	page := NewPageWithOptions(FrameOptions{
		Resolve: func(url string) (string, bool) {
			close(resolving)
			<-release
			return `<p>late</p>`, true
		},
	})
	f := attach(t, page)
	nextLoad(t, f)

	f.SetSrc("https://example.test/slow")
	<-resolving

	doc := f.Document()
	doc.Open()
	doc.Write(`<p>written</p>`)
	close(release)
	doc.Close()

	ev := nextLoad(t, f)
	assert.Equal(t, f.Generation(), ev.Generation)
	assert.Equal(t, "written", htmlquery.InnerText(doc.Body()))

	select {
	case ev := <-f.Loads():
		t.Fatalf("unexpected load %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWindowPrint(t *testing.T) {
	var printed *Document
	f := attach(t, NewPageWithOptions(FrameOptions{Print: func(doc *Document) { printed = doc }}))

	f.ContentWindow().Print()
	assert.Equal(t, 1, f.Window().Prints())
	assert.Same(t, f.Document(), printed)
}

func TestParsePage(t *testing.T) {
	page, err := ParsePage(strings.NewReader(`<div id="a">x</div>`), FrameOptions{})
	require.NoError(t, err)
	require.NotNil(t, page.Body())
	assert.NotNil(t, htmlquery.FindOne(page.Root(), "//body/div[@id='a']"))
}

func TestLoadsWithoutListener(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := attach(t, NewPage())
	nextLoad(t, f)

	for i := 0; i < 2*loadBuffer; i++ {
		f.Document().Open()
		f.Document().Close()
	}

	assert.Len(t, f.Loads(), loadBuffer)
	assert.Equal(t, uint64(1+2*loadBuffer), f.Generation())
}
