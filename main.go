package main

import "watchdogd/cmd"

func main() {
	cmd.Execute()
}
