// Command analyst ingests SEDAR+ filings and answers questions about them.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
