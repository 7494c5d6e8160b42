// occtl issues one control-plane command against a running ocbridged and
// prints the response.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/opencontrol/ocbridge/internal/control"
)

func main() {
	port := flag.Int("port", control.DefaultPort, "ocbridged control port")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: occtl [-port N] status|ping|info|pause|resume|shutdown\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)
	switch command {
	case control.CmdStatus, control.CmdPing, control.CmdInfo,
		control.CmdPause, control.CmdResume, control.CmdShutdown:
	default:
		fmt.Fprintf(os.Stderr, "occtl: unknown command %q\n", command)
		os.Exit(2)
	}

	resp, err := control.NewClient(*port).Do(command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "occtl: %v\n", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "occtl: %s: %s\n", command, resp.Error)
		os.Exit(1)
	}

	if len(resp.Data) == 0 {
		fmt.Println("ok")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Data, "", "  "); err != nil {
		fmt.Println(string(resp.Data))
		return
	}
	fmt.Println(pretty.String())
}
