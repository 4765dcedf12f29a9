// Package main implements the polybson tool to work with files of encoded
// documents.
//
//  polybson inspect data.bson
//  polybson inspect --rules rules.yaml --strict data.bson
//  polybson migrate --rules rules.yaml --out migrated.bson data.bson
//  polybson dump --canonical data.bson
//  polybson types
//
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/polybson/cli/ucli"
	"go.dedis.ch/polybson/serde/controller"
	"go.dedis.ch/polybson/serde/registry"
)

func main() {
	err := run(os.Args, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	builder := ucli.NewBuilder("polybson", nil)
	builder.SetUsage("inspect, migrate and dump polymorphic BSON documents")

	controller.NewController(registry.NewRegistry(), out).SetCommands(builder)

	return builder.Build().Run(args)
}
