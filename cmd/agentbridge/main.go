// Command agentbridge is the Agent Execution Core's entrypoint: it wires
// the facade and its collaborators together and exposes them through a
// cobra CLI (serve, doctor, migrate).
package main

func main() {
	Execute()
}
