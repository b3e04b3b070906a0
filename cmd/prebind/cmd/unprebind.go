/*
Copyright © 2018-2023 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/blacktop/prebind/internal/commands/prebind"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(unprebindCmd)
	addOptionFlags(unprebindCmd, false)
}

// unprebindCmd represents the unprebind command
var unprebindCmd = &cobra.Command{
	Use:   "unprebind <MACHO>...",
	Short: "Remove prebinding so files are identical however they were prebound",
	Example: heredoc.Doc(`
		# Strip the prebinding of a library in place
		$ prebind unprebind -f /usr/lib/libfoo.dylib

		# Only touch files that are still prebound
		$ prebind unprebind --only-if-needed --output /tmp/out bin/*`),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, prebind.ModeUnprebind, args)
	},
}
