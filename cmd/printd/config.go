package main

import (
	"fmt"
	"strings"

	"github.com/root4loot/goutils/log"
	"github.com/spf13/viper"
)

// short flag names mapped to their long form
var aliases = map[string]string{
	"i":  "input",
	"x":  "xpath",
	"u":  "url",
	"e":  "engine",
	"cu": "css-url",
	"su": "script-url",
	"p":  "paper",
	"l":  "landscape",
	"nb": "no-background",
	"to": "timeout",
	"ns": "no-sandbox",
	"c":  "config",
	"o":  "outfile",
	"s":  "silence",
	"v":  "verbose",
	"h":  "help",
}

func longName(name string) string {
	if long, ok := aliases[name]; ok {
		return long
	}
	return name
}

// loadConfig fills options from the config file. Flags given on the command
// line take precedence.
func (cli *cli) loadConfig() error {
	if cli.Config == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(cli.Config)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config %s: %w", cli.Config, err)
	}
	log.Debugf("Using config file %s", v.ConfigFileUsed())

	values := map[string]*string{
		"input":      &cli.Infile,
		"xpath":      &cli.XPath,
		"url":        &cli.TargetURL,
		"engine":     &cli.Engine,
		"css":        &cli.CSS,
		"css-url":    &cli.CSSURLs,
		"script-url": &cli.ScriptURLs,
		"paper":      &cli.Paper,
		"chrome-url": &cli.ChromeURL,
		"outfile":    &cli.Outfile,
	}
	for key, dst := range values {
		if cli.set[key] || !v.IsSet(key) {
			continue
		}
		// lists may be given as sequences
		if _, ok := v.Get(key).([]interface{}); ok {
			*dst = strings.Join(v.GetStringSlice(key), ",")
			continue
		}
		*dst = v.GetString(key)
	}

	bools := map[string]*bool{
		"landscape":     &cli.Landscape,
		"no-background": &cli.NoBackground,
		"no-sandbox":    &cli.NoSandbox,
		"silence":       &cli.Silence,
		"verbose":       &cli.Verbose,
	}
	for key, dst := range bools {
		if !cli.set[key] && v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	if !cli.set["timeout"] && v.IsSet("timeout") {
		cli.Timeout = v.GetInt("timeout")
	}

	return nil
}
