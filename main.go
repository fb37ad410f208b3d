package main

import "vuload/cmd"

func main() {
	cmd.Execute()
}
