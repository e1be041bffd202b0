package command

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
)

var Commands = []*Command{
	cmdCheck,
	cmdRebuild,
	cmdScaffold,
	cmdVersion,
}

type Command struct {
	// Run runs the command.
	// The args are the arguments after the command name.
	// It returns false when the arguments are unusable and usage should be printed.
	Run func(cmd *Command, args []string) bool

	// UsageLine is the one-line usage message.
	// The first word in the line is taken to be the command name.
	UsageLine string

	// Short is the short description shown in the 'hbck help' output.
	Short string

	// Long is the long message shown in the 'hbck help <this-command>' output.
	Long string

	// Flag is a set of flags specific to this command.
	Flag flag.FlagSet
}

// Name returns the command's name: the first word in the usage line.
func (c *Command) Name() string {
	name := c.UsageLine
	i := strings.Index(name, " ")
	if i >= 0 {
		name = name[:i]
	}
	return name
}

func (c *Command) Usage() {
	fmt.Fprintf(os.Stderr, "Example: hbck %s\n", c.UsageLine)
	fmt.Fprintf(os.Stderr, "Default Usage:\n")
	c.Flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "Description:\n")
	fmt.Fprintf(os.Stderr, "  %s\n", strings.TrimSpace(c.Long))
	os.Exit(2)
}

// Runnable reports whether the command can be run; otherwise
// it is a documentation pseudo-command such as importpath.
func (c *Command) Runnable() bool {
	return c.Run != nil
}

var (
	exitStatus = 0
	exitMu     sync.Mutex
)

// SetExitStatus raises the process exit status; it never lowers it.
func SetExitStatus(n int) {
	exitMu.Lock()
	if exitStatus < n {
		exitStatus = n
	}
	exitMu.Unlock()
}

func ExitStatus() int {
	exitMu.Lock()
	defer exitMu.Unlock()
	return exitStatus
}

func splitTables(tables string) (names []string) {
	for _, name := range strings.Split(tables, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return
}
