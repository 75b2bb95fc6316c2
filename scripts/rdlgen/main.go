// rdlgen generates report definitions from the command line and smoke-checks
// a running report API.
package main

import "os"

func main() {
	os.Exit(int(Run()))
}
