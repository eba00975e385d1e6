package main

import "github.com/CosmoTheDev/assessmaker/cmd"

func main() {
	cmd.Execute()
}
