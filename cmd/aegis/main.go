// Command aegis is the entrypoint for the Aegis policy-enforcing gateway.
package main

import "github.com/aegis-gate/aegis/cmd/aegis/cmd"

func main() {
	cmd.Execute()
}
