package main

import "github.com/RyanBlaney/song-popularity/cmd"

func main() {
	cmd.Execute()
}
