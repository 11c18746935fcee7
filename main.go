// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/trellis-build/trls/cmd/trls"

func main() {
	cmd.Execute()
}
