// Command gbforge resolves dependencies, generates native build inputs,
// and builds, packages and deploys the emulator for one platform.
package main

import "github.com/gbforge/gbforge/cmd/gbforge/internal"

func main() {
	internal.Execute()
}
