package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/goutils/sliceutil"
	"github.com/root4loot/goutils/urlutil"
	"github.com/root4loot/printd"
	"github.com/root4loot/printd/pkg/memdom"
	"github.com/root4loot/printd/pkg/pdf"
	"github.com/root4loot/printd/pkg/rodhost"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	author = "@danielantonsen"
	usage  = `USAGE:
  printd [options] (-i <page.html> [-x <xpath>] | -u <url>)
  cat page.html | printd [options] [-x <xpath>]

INPUT:
  -i,   --input                  HTML file holding the element to print
  -x,   --xpath                  element to print                                        (Default: //body)
  -u,   --url                    URL to print (requires --engine rod)

CONFIGURATIONS:
  -e,   --engine                 host document engine: memory, rod                       (Default: memory)
  -css, --css                    CSS text injected before printing
  -cu,  --css-url                stylesheet URLs (comma separated, in order)
  -su,  --script-url             script URLs (comma separated, in order)
  -p,   --paper                  paper size: A4, A5, LETTER, LEGAL                       (Default: A4)
  -l,   --landscape              landscape orientation                                   (Default: false)
  -nb,  --no-background          do not print background graphics                        (Default: false)
  -to,  --timeout                print timeout                                           (Default: 30 seconds)
        --chrome-url             DevTools URL of a running browser                       (Default: launch one)
  -ns,  --no-sandbox             run the browser without sandbox                         (Default: false)
  -c,   --config                 config file (yaml, json, toml) with the long flag names

OUTPUT:
  -o,   --outfile                save PDF to specified file                              (Default: ./print.pdf)
  -s,   --silence                silence output
  -v,   --verbose                verbose output
        --version                display version
`
)

const (
	engineMemory = "memory"
	engineRod    = "rod"
)

var engines = []string{engineMemory, engineRod}

type cli struct {
	Infile       string
	XPath        string
	TargetURL    string
	Engine       string
	CSS          string
	CSSURLs      string
	ScriptURLs   string
	Paper        string
	Landscape    bool
	NoBackground bool
	Timeout      int
	ChromeURL    string
	NoSandbox    bool
	Config       string
	Outfile      string
	Silence      bool
	Verbose      bool

	// flags given on the command line, by long name
	set map[string]bool
}

func NewCLI() *cli {
	return &cli{
		XPath:   "//body",
		Engine:  engineMemory,
		Paper:   string(pdf.PaperA4),
		Timeout: 30,
		Outfile: "./print.pdf",
		set:     make(map[string]bool),
	}
}

func init() {
	log.Init("printd")
}

func main() {
	cli := NewCLI()
	cli.parseFlags(os.Args[1:])

	if err := cli.loadConfig(); err != nil {
		log.Fatalf("%v", err)
	}

	printd.SetLogLevel(&printd.Options{Silence: cli.Silence, Verbose: cli.Verbose})

	if err := cli.validate(); err != nil {
		log.Error(err)
		fmt.Print(usage)
		os.Exit(1)
	}

	if err := cli.run(context.Background()); err != nil {
		handlePrintError(err)
		os.Exit(1)
	}
}

func (cli *cli) parseFlags(args []string) {
	var help, ver bool
	defaults := NewCLI()

	fs := flag.NewFlagSet("printd", flag.ExitOnError)

	// INPUT
	fs.StringVar(&cli.Infile, "input", "", "")
	fs.StringVar(&cli.Infile, "i", "", "")
	fs.StringVar(&cli.XPath, "xpath", defaults.XPath, "")
	fs.StringVar(&cli.XPath, "x", defaults.XPath, "")
	fs.StringVar(&cli.TargetURL, "url", "", "")
	fs.StringVar(&cli.TargetURL, "u", "", "")

	// CONFIGURATIONS
	fs.StringVar(&cli.Engine, "engine", defaults.Engine, "")
	fs.StringVar(&cli.Engine, "e", defaults.Engine, "")
	fs.StringVar(&cli.CSS, "css", "", "")
	fs.StringVar(&cli.CSSURLs, "css-url", "", "")
	fs.StringVar(&cli.CSSURLs, "cu", "", "")
	fs.StringVar(&cli.ScriptURLs, "script-url", "", "")
	fs.StringVar(&cli.ScriptURLs, "su", "", "")
	fs.StringVar(&cli.Paper, "paper", defaults.Paper, "")
	fs.StringVar(&cli.Paper, "p", defaults.Paper, "")
	fs.BoolVar(&cli.Landscape, "landscape", false, "")
	fs.BoolVar(&cli.Landscape, "l", false, "")
	fs.BoolVar(&cli.NoBackground, "no-background", false, "")
	fs.BoolVar(&cli.NoBackground, "nb", false, "")
	fs.IntVar(&cli.Timeout, "timeout", defaults.Timeout, "")
	fs.IntVar(&cli.Timeout, "to", defaults.Timeout, "")
	fs.StringVar(&cli.ChromeURL, "chrome-url", "", "")
	fs.BoolVar(&cli.NoSandbox, "no-sandbox", false, "")
	fs.BoolVar(&cli.NoSandbox, "ns", false, "")
	fs.StringVar(&cli.Config, "config", "", "")
	fs.StringVar(&cli.Config, "c", "", "")

	// OUTPUT
	fs.StringVar(&cli.Outfile, "outfile", defaults.Outfile, "")
	fs.StringVar(&cli.Outfile, "o", defaults.Outfile, "")
	fs.BoolVar(&cli.Silence, "silence", false, "")
	fs.BoolVar(&cli.Silence, "s", false, "")
	fs.BoolVar(&cli.Verbose, "verbose", false, "")
	fs.BoolVar(&cli.Verbose, "v", false, "")
	fs.BoolVar(&help, "help", false, "")
	fs.BoolVar(&help, "h", false, "")
	fs.BoolVar(&ver, "version", false, "")

	fs.Usage = func() {
		fmt.Print(usage)
	}

	_ = fs.Parse(args)

	fs.Visit(func(f *flag.Flag) {
		cli.set[longName(f.Name)] = true
	})

	if help {
		fmt.Print(usage)
		os.Exit(0)
	}

	if ver {
		fmt.Println("printd", printd.Version, "by", author)
		os.Exit(0)
	}
}

// validate checks the combination of options.
func (cli *cli) validate() error {
	if !sliceutil.Contains(engines, cli.Engine) {
		return fmt.Errorf("unknown engine %q", cli.Engine)
	}

	if _, err := pdf.ParsePaperSize(cli.Paper); err != nil {
		return err
	}

	switch {
	case cli.hasTarget() && cli.hasInfile():
		return errors.New("--url and --input are mutually exclusive")
	case cli.hasTarget() && cli.Engine != engineRod:
		return errors.New("printing a URL requires --engine rod")
	case !cli.hasTarget() && !cli.hasInfile() && !cli.hasStdin():
		return errors.New("no input specified")
	}

	if cli.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %d", cli.Timeout)
	}

	return nil
}

// run prints the requested element or URL and saves the result as PDF.
func (cli *cli) run(ctx context.Context) error {
	timeout := time.Duration(cli.Timeout) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	renderer := pdf.NewChromedpRenderer(cli.rendererConfig())
	defer renderer.Close()

	printed := make(chan error, 1)
	sink := func(markup string) error {
		err := cli.save(ctx, renderer, markup)
		select {
		case printed <- err:
		default:
		}
		return err
	}

	var target string
	if cli.hasTarget() {
		var err error
		if target, err = normalize(cli.TargetURL); err != nil {
			return fmt.Errorf("invalid URL %s: %w", cli.TargetURL, err)
		}
	}

	host, closeHost, err := cli.openHost(target, sink)
	if err != nil {
		return err
	}
	defer closeHost()

	p, err := printd.New(host.page, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	if target != "" {
		log.Debugf("Printing %s", target)
		p.PrintURL(target, nil)
	} else {
		el, err := selectElement(host.root, cli.XPath)
		if err != nil {
			return err
		}
		log.Debugf("Printing %s", cli.XPath)
		p.Print(el, cli.printOptions())
	}

	select {
	case err := <-printed:
		if err != nil {
			return err
		}
		log.Resultf("PDF saved to %s", cli.Outfile)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("nothing was printed: %w", ctx.Err())
	}
}

// openedHost is the page the controller attaches to and the document the
// element is selected from.
type openedHost struct {
	page printd.Page
	root *html.Node
}

// openHost opens the page the iframe is attached to. For a target URL the
// page is the target's origin, so the iframe content stays accessible.
func (cli *cli) openHost(target string, sink func(markup string) error) (*openedHost, func(), error) {
	var input []byte
	if target == "" {
		var err error
		if input, err = cli.readInput(); err != nil {
			return nil, nil, err
		}
	}

	if cli.Engine == engineMemory {
		page, err := memdom.ParsePage(bytes.NewReader(input), memdom.FrameOptions{
			Print: func(doc *memdom.Document) {
				markup, err := doc.HTML()
				if err != nil {
					log.Errorf("Could not render document: %v", err)
					return
				}
				_ = sink(markup)
			},
		})
		if err != nil {
			return nil, nil, err
		}
		return &openedHost{page: page, root: page.Root()}, func() {}, nil
	}

	options := rodhost.DefaultOptions()
	options.ControlURL = cli.ChromeURL
	options.NoSandbox = cli.NoSandbox
	options.HTML = string(input)
	if target != "" {
		hostURL, err := originOf(target)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid URL %s: %w", target, err)
		}
		options.URL = hostURL
	}
	options.Timeout = time.Duration(cli.Timeout) * time.Second
	options.Print = sink

	host, err := rodhost.NewWithOptions(*options)
	if err != nil {
		return nil, nil, err
	}
	closeHost := func() {
		if err := host.Close(); err != nil {
			log.Debugf("Could not close browser: %v", err)
		}
	}
	return &openedHost{page: host, root: host.Root()}, closeHost, nil
}

func (cli *cli) readInput() ([]byte, error) {
	if cli.hasInfile() && cli.Infile != "-" {
		data, err := os.ReadFile(cli.Infile)
		if err != nil {
			return nil, fmt.Errorf("error reading file: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("error reading from stdin: %w", err)
	}
	return data, nil
}

func (cli *cli) save(ctx context.Context, renderer pdf.Renderer, markup string) error {
	paper, err := pdf.ParsePaperSize(cli.Paper)
	if err != nil {
		return err
	}

	res, err := renderer.Render(ctx, &pdf.RenderRequest{
		HTML:            markup,
		PaperSize:       paper,
		Landscape:       cli.Landscape,
		PrintBackground: !cli.NoBackground,
	})
	if err != nil {
		return err
	}

	return pdf.WriteFile(cli.Outfile, res.PDFData)
}

func (cli *cli) printOptions() *printd.PrintOptions {
	return &printd.PrintOptions{
		CSSText:    cli.CSS,
		CSSURLs:    splitList(cli.CSSURLs),
		ScriptURLs: splitList(cli.ScriptURLs),
	}
}

func (cli *cli) rendererConfig() *pdf.ChromedpConfig {
	config := pdf.DefaultChromedpConfig()
	config.RemoteURL = cli.ChromeURL
	config.NoSandbox = cli.NoSandbox
	config.DefaultTimeout = time.Duration(cli.Timeout) * time.Second
	if cli.Verbose {
		if logger, err := zap.NewDevelopment(); err == nil {
			config.Logger = logger
		}
	}
	return config
}

// selectElement returns the first node matching expr.
func selectElement(root *html.Node, expr string) (*html.Node, error) {
	el, err := htmlquery.Query(root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %s: %w", expr, err)
	}
	if el == nil {
		return nil, fmt.Errorf("no element matches %s", expr)
	}
	return el, nil
}

// normalize adds a scheme and drops default ports.
func normalize(target string) (string, error) {
	target = strings.TrimSpace(target)

	if !urlutil.HasScheme(target) {
		log.Debugf("No scheme specified for %s: using HTTPS", target)
		target = "https://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = strings.TrimSuffix(u.Host, ":"+port)
	}

	if u.Path == "" && u.RawQuery == "" && u.Fragment == "" {
		return urlutil.EnsureTrailingSlash(u.String())
	}

	return u.String(), nil
}

// originOf returns the root page of the origin target is served from.
func originOf(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("missing scheme or host")
	}
	return u.Scheme + "://" + u.Host + "/", nil
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func handlePrintError(err error) {
	var renderErr *pdf.RenderError
	switch {
	case errors.As(err, &renderErr) && renderErr.Code == pdf.ErrCodeRenderTimeout:
		log.Errorf("PDF rendering timed out: %s", unwrapError(err))
	case errors.Is(err, context.DeadlineExceeded):
		log.Errorf("Timeout: %v", err)
	default:
		log.Errorf("Print failed: %s", unwrapError(err))
	}
}

func unwrapError(err error) string {
	rootErr := err
	for {
		unwrappedErr := errors.Unwrap(rootErr)
		if unwrappedErr == nil {
			break
		}
		rootErr = unwrappedErr
	}
	return rootErr.Error()
}

func (cli *cli) hasStdin() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	mode := stat.Mode()

	isPipedFromChrDev := (mode & os.ModeCharDevice) == 0
	isPipedFromFIFO := (mode & os.ModeNamedPipe) != 0

	return isPipedFromChrDev || isPipedFromFIFO
}

func (cli *cli) hasTarget() bool {
	return cli.TargetURL != ""
}

func (cli *cli) hasInfile() bool {
	return cli.Infile != ""
}
