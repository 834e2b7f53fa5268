package main

import "eufy-bridge/cmd"

func main() {
	cmd.Execute()
}
