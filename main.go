package main

import "meal-match-backend/cmd"

func main() {
	cmd.Run()
}
