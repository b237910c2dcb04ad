package main

import "github.com/ValentinKolb/dSD/cmd"

func main() {
	cmd.Execute()
}
