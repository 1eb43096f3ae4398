package main

import "github.com/stephnangue/nxauth/cmd"

func main() {
	cmd.Execute()
}
