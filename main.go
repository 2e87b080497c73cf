package main

import "github.com/samsaffron/sizesync/cmd"

func main() {
	cmd.Execute()
}
