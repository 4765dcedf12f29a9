// Package cli describes the command-line surface of the tools of the module
// without binding it to a parsing library. The commands are declared on a
// builder and the actions only see the parsed flags.
//
// 	var builder Builder
//
// 	cmd := builder.SetCommand("dump")
// 	cmd.SetDescription("Print a document")
// 	cmd.SetArgsUsage("<file>")
// 	cmd.SetAction(func(flags Flags) error {
// 		fmt.Printf("Dumping %s\n", flags.Arg(0))
// 		return nil
// 	})
//
// 	builder.Build().Run(os.Args)
//
// Documentation Last Review: 18.10.2026
//
package cli

// Builder collects the commands of a tool and produces the runnable
// application once every command is declared.
type Builder interface {
	// SetCommand declares a top-level command and returns it so that it can
	// be completed.
	SetCommand(name string) CommandBuilder

	// Build returns the application with the declared commands.
	Build() Application
}

// Application is a tool ready to process a command line.
type Application interface {
	// Run parses the arguments, the first one being the name of the tool, and
	// executes the matching action.
	Run(arguments []string) error
}

// CommandBuilder completes the declaration of a command.
type CommandBuilder interface {
	// SetDescription sets the one-line help of the command.
	SetDescription(value string)

	// SetArgsUsage sets the help of the positional arguments.
	SetArgsUsage(value string)

	// SetFlags sets the flags accepted by the command.
	SetFlags(...Flag)

	// SetAction sets the function executed when the command is selected.
	SetAction(Action)

	// SetSubCommand declares a command nested in this one.
	SetSubCommand(name string) CommandBuilder
}

// Action is the body of a command. It returns an error when the command
// fails, which makes the tool exit with a failure.
type Action func(Flags) error

// Flag is the declaration of an option of a command. The concrete types of
// this package are the only ones a builder is expected to understand.
type Flag interface {
	Flag()
}

// Flags gives an action the parsed values of the options and the positional
// arguments. An option that was not given returns its default value.
type Flags interface {
	String(name string) string

	StringSlice(name string) []string

	Path(name string) string

	Int(name string) int

	Bool(name string) bool

	// NArg returns the number of positional arguments.
	NArg() int

	// Arg returns the positional argument at the index, or an empty string if
	// it does not exist.
	Arg(index int) string
}
