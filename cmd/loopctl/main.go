// Command loopctl runs the plan/generate/evaluate/patch orchestration loop
// for one task until the verdict passes or the iteration budget is spent.
package main

import "loopctl/internal/cli"

func main() {
	cli.Execute()
}
