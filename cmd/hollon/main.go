// Command hollon orchestrates worker agents against a git repository.
package main

func main() {
	Execute()
}
