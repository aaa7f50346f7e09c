/*
Copyright © 2026 AVI COHEN
*/
package main

import "github.com/aviciot/queryscope/cmd"

func main() {
	cmd.Execute()
}
