// Package controller implements the commands of the polybson tool, which
// inspects, migrates and dumps files of encoded documents.
//
// A file is a sequence of BSON documents, as written by the Marshal function
// of a serializer or by any tool that concatenates documents. The commands are
// registered on a cli builder:
//
//	builder := ucli.NewBuilder("polybson", nil)
//	controller.NewController(reg, os.Stdout).SetCommands(builder)
//
// Documentation Last Review: 18.10.2026
//
package controller

import (
	"io"

	"go.dedis.ch/polybson/cli"
	"go.dedis.ch/polybson/serde/codec"
	"go.dedis.ch/polybson/serde/registry"
)

const (
	rulesFlag     = "rules"
	outFlag       = "out"
	forceFlag     = "force"
	strictFlag    = "strict"
	canonicalFlag = "canonical"
)

// Context is the context available to an action when it is invoked.
type Context struct {
	Flags cli.Flags
	Out   io.Writer
}

// actionTemplate is the interface implemented by the actions of the commands.
type actionTemplate interface {
	Execute(Context) error
}

// Controller populates a cli builder with the commands of the tool.
type Controller struct {
	registry *registry.Registry
	out      io.Writer
	opts     []codec.Option
}

// NewController returns a controller that decodes with the registry and the
// options, and that prints the results to the writer. The registry is where an
// application registers its domain types so that the documents are decoded
// into them rather than into custom objects.
func NewController(reg *registry.Registry, out io.Writer, opts ...codec.Option) Controller {
	return Controller{
		registry: reg,
		out:      out,
		opts:     opts,
	}
}

// SetCommands populates the builder with the commands.
func (c Controller) SetCommands(builder cli.Builder) {
	cmd := builder.SetCommand("inspect")
	cmd.SetDescription("decode the documents of a file and print the values")
	cmd.SetArgsUsage("<file>")
	cmd.SetFlags(
		cli.StringSliceFlag{
			Name:  rulesFlag,
			Usage: "YAML file of migration rules, can be repeated",
		},
		cli.BoolFlag{
			Name:  strictFlag,
			Usage: "fail if a diagnostic is reported",
		},
	)
	cmd.SetAction(c.makeAction(inspectAction{Controller: c}))

	cmd = builder.SetCommand("migrate")
	cmd.SetDescription("rewrite the documents of a file with migration rules")
	cmd.SetArgsUsage("<file>")
	cmd.SetFlags(
		cli.StringSliceFlag{
			Name:     rulesFlag,
			Usage:    "YAML file of migration rules, can be repeated",
			Required: true,
		},
		cli.PathFlag{
			Name:     outFlag,
			Usage:    "path of the migrated file",
			Required: true,
		},
		cli.BoolFlag{
			Name:  forceFlag,
			Usage: "overwrite the output file if it exists",
		},
	)
	cmd.SetAction(c.makeAction(migrateAction{}))

	cmd = builder.SetCommand("dump")
	cmd.SetDescription("print the documents of a file as extended JSON")
	cmd.SetArgsUsage("<file>")
	cmd.SetFlags(
		cli.BoolFlag{
			Name:  canonicalFlag,
			Usage: "use the canonical form instead of the relaxed one",
		},
	)
	cmd.SetAction(c.makeAction(dumpAction{}))

	cmd = builder.SetCommand("types")
	cmd.SetDescription("list the discriminators known by the registry")
	cmd.SetAction(c.makeAction(typesAction{Controller: c}))
}

// makeAction creates a cli action from the template.
func (c Controller) makeAction(tmpl actionTemplate) cli.Action {
	return func(flags cli.Flags) error {
		return tmpl.Execute(Context{
			Flags: flags,
			Out:   c.out,
		})
	}
}

// serializer returns a new serializer for the controller options with the
// extra options appended.
func (c Controller) serializer(extra ...codec.Option) *codec.Serializer {
	opts := append(append([]codec.Option{}, c.opts...), extra...)

	return codec.NewSerializer(c.registry, opts...)
}
