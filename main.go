package main

import "github.com/klimkalender/klimkalender-cms/cmd"

func main() {
	cmd.Execute()
}
