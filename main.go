package main

import "github.com/vbrik/cta-data-relay/cmd"

func main() {
	cmd.Execute()
}
