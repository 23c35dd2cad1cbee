package main

import "strings"

// legacyFlags are the multi-letter single-dash flags of the original
// command line. cobra only accepts one-letter shorthands, so they are
// rewritten to their long form.
var legacyFlags = map[string]bool{
	"jh": true, "jn": true, "ji": true, "sb": true, "lh": true,
	"mc": true, "step": true, "me": true, "cv": true, "hv": true,
}

// rewriteLegacyArgs turns "-jh 4" into "--jh 4" and runs generate when the
// arguments start with a flag instead of a subcommand.
func rewriteLegacyArgs(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for _, a := range args {
		if strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") {
			name, _, _ := strings.Cut(a[1:], "=")
			if legacyFlags[name] {
				a = "-" + a
			}
		}
		out = append(out, a)
	}
	if len(out) > 0 && strings.HasPrefix(out[0], "-") {
		switch out[0] {
		case "-h", "--help", "--version":
		default:
			out = append([]string{"generate"}, out...)
		}
	}
	return out
}
