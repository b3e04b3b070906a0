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
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/prebind/internal/colors"
	"github.com/blacktop/prebind/pkg/segaddr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(segAddrCmd)
}

// segAddrCmd represents the segaddr command
var segAddrCmd = &cobra.Command{
	Use:   "segaddr <TABLE> <INSTALL_NAME>...",
	Short: "Look up library addresses in a seg_addr_table",
	Example: heredoc.Doc(`
		# Where does libSystem go?
		$ prebind segaddr seg_addr_table /usr/lib/libSystem.B.dylib`),
	Args:          cobra.MinimumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		table, err := segaddr.Open(args[0])
		if err != nil {
			return err
		}
		log.WithField("entries", len(table.Entries)).Debug("Parsed table")

		for _, name := range args[1:] {
			e, ok := table.Lookup(name)
			if !ok {
				return fmt.Errorf("%s is not in %s", name, args[0])
			}
			if e.Split {
				fmt.Printf("%s %s %s\n",
					colors.Bold().Sprint(name),
					colors.HiYellow().Sprintf("%#08x", e.SegsReadOnlyAddr),
					colors.HiYellow().Sprintf("%#08x", e.SegsReadWriteAddr))
			} else {
				fmt.Printf("%s %s\n", colors.Bold().Sprint(name), colors.HiYellow().Sprintf("%#08x", e.Seg1Addr))
			}
		}
		return nil
	},
}
