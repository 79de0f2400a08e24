// Command resetcode prints the bcrypt hash to put in RESET_CODE_HASH.
//
//	go run ./cmd/resetcode 'my reset code'
package main

import (
	"fmt"
	"os"

	pkgauth "github.com/BradenHooton/matcenter/pkg/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: resetcode <code>")
		os.Exit(2)
	}

	hashed, err := pkgauth.HashResetCode(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hashed)
}
