// Command keeper runs investigative horror sessions with a narrative
// generator as the game master.
package main

func main() {
	Execute()
}
