package guard

import (
	"path"
	"strings"
)

// matchHostPattern matches a hostname label by label. A "**" label spans any
// number of host labels, including none; every other label is a glob matched
// against exactly one host label.
func matchHostPattern(host, pattern string) bool {
	return matchLabels(strings.Split(host, "."), strings.Split(pattern, "."))
}

func matchLabels(host, pattern []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := len(host); i >= 0; i-- {
				if matchLabels(host[i:], rest) {
					return true
				}
			}
			return false
		}
		if len(host) == 0 {
			return false
		}
		// Labels never contain "/", so path.Match is a plain glob here.
		if ok, err := path.Match(pattern[0], host[0]); err != nil || !ok {
			return false
		}
		host, pattern = host[1:], pattern[1:]
	}
	return len(host) == 0
}
