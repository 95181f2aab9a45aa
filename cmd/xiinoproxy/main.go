package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/mrmarble/xiinoproxy/cmd/xiinoproxy/serve"
)

type VersionFlag string

// Version info (populated by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong) error {
	fmt.Printf("xiinoproxy %s (%s) built on %s\n", version, commit, date)
	app.Exit(0)
	return nil
}

func main() {
	var cli struct {
		Version VersionFlag `name:"version" help:"Print version information and quit"`

		Serve serve.Cmd `cmd:"" help:"Start the transcoding proxy listener"`
	}

	ctx := kong.Parse(&cli,
		kong.Name("xiinoproxy"),
		kong.Description("Transcoding HTTP proxy for Xiino and Palmscape handheld browsers"),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
