package main

import (
	"github.com/jessevdk/go-flags"
)

// options defines command line options
type options struct {
	ConfigPath string `short:"c" long:"config" description:"path to the configuration file" default:"config.yaml"`
	Port       int    `short:"p" long:"port" description:"HTTP port to listen on, overrides http_port"`
	Version    bool   `short:"v" long:"version" description:"display the version and exit"`
}

// parseOptions parses command line arguments, args[0] being the program name
func parseOptions(args []string) (*options, error) {
	opts := &options{}
	parser := flags.NewParser(opts, flags.Default)
	parser.Name = "aliyun-cms-exporter"

	if _, err := parser.ParseArgs(args[1:]); err != nil {
		return nil, err
	}
	return opts, nil
}

func isHelp(err error) bool {
	return flags.WroteHelp(err)
}
