package main

import (
	"github.com/globepay/meshpay/cmd"
)

func main() {
	cmd.Execute()
}
