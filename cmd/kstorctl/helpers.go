package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"kstor/internal/model"
)

// Exit codes, grounded on cmd/metalo/actions/common.go's InvalidParameter/
// OperationFailed/AuthenticationFailed triple.
const (
	InvalidParameter = 1
	OperationFailed  = 2
)

// readCredential returns val unchanged if non-empty, otherwise prompts on
// the terminal, masking input when mask is set. Ported from
// cmd/metalo/actions/common.go's ReadCredential.
func readCredential(val, prompt string, mask bool) string {
	if val != "" {
		return val
	}

	fmt.Fprint(os.Stderr, prompt)

	if mask {
		byteVal, err := term.ReadPassword(syscall.Stdin)
		if err != nil {
			panic("error when reading password")
		}
		val = string(byteVal)
	} else {
		reader := bufio.NewReader(os.Stdin)
		val, _ = reader.ReadString('\n')
	}

	fmt.Fprintln(os.Stderr)
	return strings.TrimSpace(val)
}

func metaFromFlags(c *cli.Context) model.SecretMeta {
	return model.SecretMeta{
		App:      c.String("app"),
		Database: c.String("database"),
		Login:    c.String("login"),
		Server:   c.String("server"),
		URL:      c.String("url"),
	}
}
