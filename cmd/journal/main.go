// Command journal runs the trading-journal backend and its maintenance tasks.
package main

import "github.com/Rahwulkumar/trading-journal/internal/cli"

func main() {
	cli.Execute()
}
