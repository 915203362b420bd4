package main

import "github.com/Mkrolick/co-streamer/cmd"

func main() {
	cmd.Execute()
}
