// Command oxcryptfs mounts and manages Cryptomator-format encrypted vaults.
package main

import (
	"errors"
	"os"

	"github.com/oxcrypt/oxcryptfs/cmd/oxcryptfs/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("%v", err)

		var cliErr *commands.CLIError
		if errors.As(err, &cliErr) {
			os.Exit(cliErr.Code)
		}
		os.Exit(commands.ExitConfigError)
	}
}
