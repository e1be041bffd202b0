package command

import (
	"fmt"
	"runtime"

	"github.com/dot2gua/hbase98learning/hbck/util"
)

var cmdVersion = &Command{
	Run:       runVersion,
	UsageLine: "version",
	Short:     "print hbck version",
	Long:      `Version prints the hbck version`,
}

func runVersion(cmd *Command, args []string) bool {
	if len(args) != 0 {
		cmd.Usage()
	}

	fmt.Printf("version %s %s %s\n", util.Version(), runtime.GOOS, runtime.GOARCH)
	return true
}
