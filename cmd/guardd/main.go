// Command guardd runs the Agent Guard ingest/broadcast service: the
// HTTP+WebSocket boundary in front of the session store, registry, and
// runtime config. Grounded on tarsy's cmd/tarsy/main.go (superseded —
// see DESIGN.md), recast as a cobra command tree per the
// dotcommander-vybe / r3e-network-service_layer convention.
package main

import "github.com/hashtagemy/guard/cmd/guardd/cmd"

func main() {
	cmd.Execute()
}
