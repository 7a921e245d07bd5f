package main

import "github.com/signsinfo/capacity/cmd"

func main() {
	cmd.Execute()
}
