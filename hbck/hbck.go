package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"github.com/golang/glog"

	"github.com/dot2gua/hbase98learning/hbck/command"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

var commands = command.Commands

func init() {
	flag.Var(&util.ConfigurationFileDirectory, "config.dir", "directory with hbck.toml")
}

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	if args[0] == "help" {
		help(args[1:])
		for _, cmd := range commands {
			if len(args) >= 2 && cmd.Name() == args[1] && cmd.Run != nil {
				fmt.Fprintf(os.Stderr, "Default Parameters:\n")
				cmd.Flag.PrintDefaults()
			}
		}
		return
	}

	for _, cmd := range commands {
		if cmd.Name() == args[0] && cmd.Run != nil {
			cmd.Flag.Usage = func() { cmd.Usage() }
			cmd.Flag.Parse(args[1:])
			args = cmd.Flag.Args()
			if cmd.Name() != "version" && cmd.Name() != "scaffold" {
				glog.V(0).Infof("%s %s %s %s", util.Version(), runtime.GOOS, runtime.GOARCH, cmd.Name())
			}
			if !cmd.Run(cmd, args) {
				fmt.Fprintf(os.Stderr, "\n")
				cmd.Flag.Usage()
				fmt.Fprintf(os.Stderr, "Default Parameters:\n")
				cmd.Flag.PrintDefaults()
				command.SetExitStatus(2)
			}
			exit()
			return
		}
	}

	fmt.Fprintf(os.Stderr, "hbck: unknown subcommand %q\nRun 'hbck help' for usage.\n", args[0])
	command.SetExitStatus(2)
	exit()
}

var usageTemplate = `
hbck: check and repair the region catalog of an hbase cluster

Usage:

	hbck command [arguments]

The commands are:
{{range .}}{{if .Runnable}}
    {{.Name | printf "%-11s"}} {{.Short}}{{end}}{{end}}

Use "hbck help [command]" for more information about a command.

`

var helpTemplate = `{{if .Runnable}}Usage: hbck {{.UsageLine}}
{{end}}
  {{.Long}}
`

// tmpl executes the given template text on data, writing the result to w.
func tmpl(w io.Writer, text string, data interface{}) {
	t := template.New("top")
	t.Funcs(template.FuncMap{"trim": strings.TrimSpace, "capitalize": capitalize})
	template.Must(t.Parse(text))
	if err := t.Execute(w, data); err != nil {
		panic(err)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToTitle(r)) + s[n:]
}

func printUsage(w io.Writer) {
	tmpl(w, usageTemplate, commands)
}

func usage() {
	printUsage(os.Stderr)
	fmt.Fprintf(os.Stderr, "For Logging, use \"hbck [logging_options] [command]\". The logging options are:\n")
	flag.PrintDefaults()
	os.Exit(2)
}

// help implements the 'help' command.
func help(args []string) {
	if len(args) == 0 {
		printUsage(os.Stdout)
		// not exit 2: succeeded at 'hbck help'.
		return
	}
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: hbck help command\n\nToo many arguments given.\n")
		os.Exit(2) // failed at 'hbck help'
	}

	arg := args[0]

	for _, cmd := range commands {
		if cmd.Name() == arg {
			tmpl(os.Stdout, helpTemplate, cmd)
			// not exit 2: succeeded at 'hbck help cmd'.
			return
		}
	}

	fmt.Fprintf(os.Stderr, "Unknown help topic %#q.  Run 'hbck help'.\n", arg)
	os.Exit(2) // failed at 'hbck help cmd'
}

func exit() {
	glog.Flush()
	os.Exit(command.ExitStatus())
}
