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
	rootCmd.AddCommand(checkCmd)
	addOptionFlags(checkCmd, false)
}

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <MACHO>...",
	Short: "Report whether files need their prebinding redone",
	Long: heredoc.Doc(`
		Check compares the prebinding of each file with its dependent libraries
		without writing anything. The exit status is 0 when every file is up to
		date, 2 when one needs a redo, 3 when one must be rebuilt, 4 when its
		libraries are inconsistent and 1 on any other failure.`),
	Example: heredoc.Doc(`
		# Check an executable against the installed libraries
		$ prebind check /bin/ls

		# Check a whole directory of a target root
		$ prebind check --root /Volumes/Target /Volumes/Target/usr/bin/*`),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, prebind.ModeCheck, args)
	},
}
