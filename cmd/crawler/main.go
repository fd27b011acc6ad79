// Command crawler is a concurrent, depth-bounded web crawler.
package main

func main() {
	Execute()
}
