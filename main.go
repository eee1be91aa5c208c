package main

import "github.com/roessland/wearabledump/cmd"

func main() {
	cmd.Execute()
}
