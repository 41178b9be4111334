// Command agentloop runs a tool-using agent against a configured model.
package main

func main() {
	Execute()
}
