// Command migrate applies PostgreSQL migrations in dependency order.
package main

import "github.com/aqasim81/depmigrate/internal/cli"

func main() {
	cli.Execute()
}
