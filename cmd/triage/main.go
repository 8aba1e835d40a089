// Command triage routes chat messages from a queue through the clinic workflow.
package main

func main() {
	Execute()
}
