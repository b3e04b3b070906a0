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
	rootCmd.AddCommand(redoCmd)
	addOptionFlags(redoCmd, true)
}

// redoCmd represents the redo command
var redoCmd = &cobra.Command{
	Use:   "redo <MACHO>...",
	Short: "Redo the prebinding of executables and dynamic libraries",
	Example: heredoc.Doc(`
		# Re-prebind an executable against the libraries installed on the system
		$ prebind redo /Applications/TextEdit.app/Contents/MacOS/TextEdit

		# Prebind against the libraries of another root and write the result elsewhere
		$ prebind redo --root /Volumes/Target --output /tmp/out /Volumes/Target/bin/ls

		# Move a library to its address in a seg_addr_table
		$ prebind redo --seg-addr-table seg_addr_table -f /usr/lib/libfoo.dylib`),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, prebind.ModeRedo, args)
	},
}
