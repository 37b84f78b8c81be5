// The main package for the cache-warmer executable.
package main

import "github.com/JakeFAU/cache-warmer/cmd"

func main() {
	cmd.Execute()
}
