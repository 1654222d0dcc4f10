package util

import (
	"strings"

	"github.com/spf13/pflag"
)

// ExtractUnknownArgs returns the arguments that are neither a known
// flag nor the value of one, e.g. a bare log level after the flags
func ExtractUnknownArgs(flags *pflag.FlagSet, args []string) []string {
	var unknownArgs []string

	for i := 0; i < len(args); i++ {
		var (
			f *pflag.Flag
			a = args[i]
		)

		switch {
		case strings.HasPrefix(a, "--") && len(a) > 2:
			f = flags.Lookup(strings.SplitN(a[2:], "=", 2)[0])
		case strings.HasPrefix(a, "-") && len(a) > 1:
			for _, s := range a[1:] {
				if f = flags.ShorthandLookup(string(s)); f == nil {
					break
				}
			}
		}

		if f != nil {
			if f.NoOptDefVal == "" && !strings.Contains(a, "=") && i+1 < len(args) && f.Value.String() == args[i+1] {
				i++
			}

			continue
		}

		unknownArgs = append(unknownArgs, a)
	}

	return unknownArgs
}
