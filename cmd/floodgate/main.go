package main

import "github.com/floodgatehq/floodgate/cmd/floodgate/cmd"

func main() {
	cmd.Execute()
}
