package main

import "github.com/pders01/navi/cmd"

func main() {
	cmd.Execute()
}
