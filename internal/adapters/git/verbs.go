package git

import (
	"path/filepath"
	"strings"
)

// Effects describes what a finished shell command means for cached
// repository facts.
type Effects struct {
	// Git is true when any segment invoked git.
	Git bool
	// BranchChanged is true for checkout, switch and branch creation or rename.
	BranchChanged bool
	// Pushed is true when a segment ran git push.
	Pushed bool
}

// Classify inspects a shell command line, including && / || / ; chains,
// and reports the effects of its git invocations.
func Classify(command string) Effects {
	var fx Effects
	for _, segment := range splitSegments(command) {
		sub, args := gitSubcommand(strings.Fields(segment))
		if sub == "" {
			continue
		}
		fx.Git = true
		switch sub {
		case "checkout":
			if checkoutChangesBranch(args) {
				fx.BranchChanged = true
			}
		case "switch":
			fx.BranchChanged = true
		case "branch":
			if branchChangesBranch(args) {
				fx.BranchChanged = true
			}
		case "push":
			fx.Pushed = true
		}
	}
	return fx
}

func splitSegments(command string) []string {
	r := strings.NewReplacer("&&", "\n", "||", "\n", ";", "\n", "|", "\n")
	return strings.Split(r.Replace(command), "\n")
}

// gitSubcommand returns the git subcommand and its arguments, skipping
// global options. It returns "" when fields do not invoke git.
func gitSubcommand(fields []string) (string, []string) {
	if len(fields) == 0 {
		return "", nil
	}
	bin := strings.ToLower(filepath.Base(fields[0]))
	if bin != "git" && bin != "git.exe" {
		return "", nil
	}

	for i := 1; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "-C" || f == "-c" || f == "--git-dir" || f == "--work-tree":
			i++ // option takes a value
		case strings.HasPrefix(f, "-"):
		default:
			return f, fields[i+1:]
		}
	}
	return "", nil
}

// checkoutChangesBranch is false for "git checkout -- <paths>" and
// "git checkout <rev> -- <paths>", which only restore files.
func checkoutChangesBranch(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
	}
	return true
}

// branchChangesBranch is true when "git branch" creates or renames a branch,
// not when it lists or deletes.
func branchChangesBranch(args []string) bool {
	positional := 0
	for _, a := range args {
		switch a {
		case "-d", "-D", "--delete", "-l", "--list", "-a", "--all", "-r", "--remotes",
			"-v", "-vv", "--verbose", "--show-current", "--contains", "--merged", "--no-merged":
			return false
		case "-m", "-M", "--move", "-c", "-C", "--copy":
			return true
		}
		if !strings.HasPrefix(a, "-") {
			positional++
		}
	}
	return positional > 0
}
