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
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/apex/log"
	"github.com/blacktop/prebind/internal/colors"
	"github.com/blacktop/prebind/internal/commands/prebind"
	"github.com/blacktop/prebind/internal/config"
	"github.com/blacktop/prebind/internal/utils"
	engine "github.com/blacktop/prebind/pkg/prebind"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// addOptionFlags registers the flags shared by redo, unprebind and check under the
// command's configuration key. Commands that move libraries also get the slide flags.
func addOptionFlags(cmd *cobra.Command, moves bool) {
	name := cmd.Name()
	cmd.Flags().StringP("root", "r", "", "Directory prepended to the paths of dependent libraries")
	cmd.Flags().StringP("executable-path", "e", "", "Path substituted for @executable_path in library names")
	cmd.Flags().Bool("allow-missing-archs", false, "Skip architectures not found in a dependent library")
	cmd.Flags().String("required-arch", "", "Architecture that must not be missing from dependent libraries (i386, ppc, arm, ...)")
	cmd.Flags().Int("cache-size", 0, "Number of dependent libraries kept in memory")
	cmd.Flags().IntP("jobs", "j", 0, "Number of files processed at once (default is the number of CPUs)")
	flags := []string{"root", "executable-path", "allow-missing-archs", "required-arch", "cache-size", "jobs"}
	if moves {
		cmd.Flags().StringP("slide", "s", "", "Move the library to this address")
		cmd.Flags().String("seg-addr-table", "", "Move the library to its address in this table")
		flags = append(flags, "slide", "seg-addr-table")
	}
	if name != "check" {
		cmd.Flags().StringP("output", "o", "", "Directory to write processed files to")
		cmd.Flags().BoolP("overwrite", "f", false, "Overwrite files without asking")
		cmd.Flags().Bool("only-if-needed", false, "Leave files that are already up to date untouched")
		flags = append(flags, "output", "overwrite", "only-if-needed")
	}
	for _, f := range flags {
		viper.BindPFlag(name+"."+f, cmd.Flags().Lookup(f))
	}
	viper.BindEnv(name+".ignore-non-prebound", config.IgnoreNonPreboundEnv)
}

func confirm(path string) bool {
	yes := false
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("You are about to overwrite %s. Continue?", path),
	}
	survey.AskOne(prompt, &yes)
	return yes
}

// run processes args in mode and exits with the status of the worst file.
func run(cmd *cobra.Command, mode prebind.Mode, args []string) error {
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}
	if viper.IsSet("color") {
		c := viper.GetBool("color")
		colors.Init(&c)
	}

	conf, err := config.LoadConfig()
	if err != nil {
		return err
	}
	opts, err := conf.Command(mode.String())
	if err != nil {
		return err
	}

	pc := &prebind.Config{Mode: mode, Options: opts}
	if mode != prebind.ModeCheck && !opts.Overwrite && opts.Output == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		pc.Confirm = confirm
	}
	d, err := prebind.New(pc)
	if err != nil {
		return err
	}

	results, err := d.Run(cmd.Context(), utils.Unique(args))
	if err != nil {
		return err
	}
	if code := prebind.ExitCode(report(mode, results)); code != 0 {
		os.Exit(code)
	}
	return nil
}

// report prints one line per file and returns the worst status.
func report(mode prebind.Mode, results []*prebind.FileResult) engine.Status {
	var worst engine.Status
	var written uint64
	for i, r := range results {
		if i == 0 {
			worst = r.Status
		} else {
			worst = prebind.Worse(worst, r.Status)
		}
		fmt.Printf("%s %s\n", colors.Status(r.Status).Sprintf("%-22s", r.Status), r.Path)
		if r.Err != nil {
			log.WithError(r.Err).Error(r.Path)
		}
		for _, a := range r.Arches {
			ctx := log.WithFields(log.Fields{"arch": a.Arch, "status": a.Status})
			if a.Slide != 0 {
				ctx = ctx.WithField("slide", fmt.Sprintf("%#x", a.Slide))
			}
			ctx.Debug(r.Path)
			for _, lib := range a.Libraries {
				utils.Indent(log.Debug, 2)(lib)
			}
		}
		if r.Output != "" {
			if fi, err := os.Stat(r.Output); err == nil {
				written += uint64(fi.Size())
			}
		}
	}
	if mode != prebind.ModeCheck && len(results) > 1 {
		log.Infof("Processed %d files, wrote %s", len(results), humanize.Bytes(written))
	}
	return worst
}
