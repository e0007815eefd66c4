package main

import "github.com/facefeed/facefeed/cmd"

func main() {
	cmd.Execute()
}
