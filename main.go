package main

import "github.com/mdorier/mochi-rkv/cmd"

func main() {
	cmd.Execute()
}
