package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoicePage = `<!DOCTYPE html><html><body>
<div id="invoice"><h1>Invoice</h1><p>Total 42</p></div>
</body></html>`

func TestParseFlags(t *testing.T) {
	cli := NewCLI()
	cli.parseFlags([]string{"-i", "page.html", "--xpath", "//div", "-cu", "a.css,b.css", "-l", "-to", "5"})

	assert.Equal(t, "page.html", cli.Infile)
	assert.Equal(t, "//div", cli.XPath)
	assert.Equal(t, "a.css,b.css", cli.CSSURLs)
	assert.True(t, cli.Landscape)
	assert.Equal(t, 5, cli.Timeout)
	assert.Equal(t, engineMemory, cli.Engine)
	assert.Equal(t, "./print.pdf", cli.Outfile)

	assert.True(t, cli.set["input"])
	assert.True(t, cli.set["css-url"])
	assert.True(t, cli.set["timeout"])
	assert.False(t, cli.set["engine"])
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printd.yaml")
	config := `engine: rod
paper: letter
landscape: true
timeout: 12
css-url:
  - a.css
  - b.css
`
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))

	cli := NewCLI()
	cli.parseFlags([]string{"-c", path, "-p", "A5"})
	require.NoError(t, cli.loadConfig())

	assert.Equal(t, engineRod, cli.Engine)
	assert.Equal(t, "A5", cli.Paper)
	assert.True(t, cli.Landscape)
	assert.Equal(t, 12, cli.Timeout)
	assert.Equal(t, "a.css,b.css", cli.CSSURLs)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cli := NewCLI()
	cli.Config = filepath.Join(t.TempDir(), "missing.yaml")
	assert.Error(t, cli.loadConfig())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*cli)
		ok    bool
	}{
		{"infile", func(c *cli) { c.Infile = "page.html" }, true},
		{"url with rod", func(c *cli) { c.TargetURL = "example.com"; c.Engine = engineRod }, true},
		{"url with memory", func(c *cli) { c.TargetURL = "example.com" }, false},
		{"url and infile", func(c *cli) { c.TargetURL = "example.com"; c.Infile = "page.html"; c.Engine = engineRod }, false},
		{"unknown engine", func(c *cli) { c.Infile = "page.html"; c.Engine = "gecko" }, false},
		{"unknown paper", func(c *cli) { c.Infile = "page.html"; c.Paper = "B52" }, false},
		{"zero timeout", func(c *cli) { c.Infile = "page.html"; c.Timeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCLI()
			tt.setup(c)
			err := c.validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got, err := normalize("example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", got)

	got, err = normalize("https://example.com/invoice?id=7")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/invoice?id=7", got)

	got, err = normalize("http://example.com:80/invoice")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/invoice", got)

	got, err = normalize("https://example.com:8443")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com:8443/", got)
}

func TestOriginOf(t *testing.T) {
	got, err := originOf("https://example.com/invoices/7?print=1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", got)

	got, err = originOf("http://127.0.0.1:8080/invoice")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/", got)

	_, err = originOf("/invoice")
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a.css", "b.css"}, splitList(" a.css, ,b.css "))
	assert.Nil(t, splitList(""))
}

func TestSelectElement(t *testing.T) {
	root, err := htmlquery.Parse(strings.NewReader(invoicePage))
	require.NoError(t, err)

	el, err := selectElement(root, "//div[@id='invoice']")
	require.NoError(t, err)
	assert.Equal(t, "div", el.Data)

	_, err = selectElement(root, "//table")
	assert.Error(t, err)

	_, err = selectElement(root, "//div[")
	assert.Error(t, err)
}

func TestRunMemoryEngine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if _, found := launcher.LookPath(); !found {
		t.Skip("no browser found")
	}

	dir := t.TempDir()
	infile := filepath.Join(dir, "invoice.html")
	require.NoError(t, os.WriteFile(infile, []byte(invoicePage), 0o644))

	cli := NewCLI()
	cli.Infile = infile
	cli.XPath = "//div[@id='invoice']"
	cli.CSS = "h1 { font-size: 2em; }"
	cli.NoSandbox = true
	cli.Outfile = filepath.Join(dir, "invoice.pdf")
	require.NoError(t, cli.validate())

	require.NoError(t, cli.run(context.Background()))

	data, err := os.ReadFile(cli.Outfile)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestRunRodURL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if _, found := launcher.LookPath(); !found {
		t.Skip("no browser found")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html><html><body><h1>Invoice %s</h1></body></html>`, r.URL.Path)
	}))
	defer srv.Close()

	cli := NewCLI()
	cli.Engine = engineRod
	cli.TargetURL = srv.URL + "/invoice"
	cli.NoSandbox = true
	cli.Outfile = filepath.Join(t.TempDir(), "invoice.pdf")
	require.NoError(t, cli.validate())

	require.NoError(t, cli.run(context.Background()))

	data, err := os.ReadFile(cli.Outfile)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}
