// Command hash-generator produces the bcrypt hash for the shared
// passphrase, for use as RECALL_AUTH_PASSPHRASE_HASH. The passphrase is
// read from stdin so it never lands in shell history.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/recallkit/recall-api/internal/service/auth"
)

func main() {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintf(os.Stderr, "failed to read passphrase: %v\n", err)
		os.Exit(1)
	}
	passphrase := strings.TrimRight(line, "\r\n")
	if passphrase == "" {
		fmt.Fprintln(os.Stderr, "passphrase cannot be empty")
		os.Exit(1)
	}

	hash, err := auth.HashPassphrase(passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash passphrase: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
