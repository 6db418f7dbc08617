// Command rados runs the radOS simulator.
package main

import "github.com/sarchlab/rados/rados/cmd"

func main() {
	cmd.Execute()
}
