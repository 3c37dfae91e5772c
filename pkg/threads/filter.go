package threads

import (
	"github.com/mb0/glob"
)

// FilterByTitle keeps the threads whose display title matches the glob
// pattern. An empty pattern keeps everything.
func FilterByTitle(threads []Thread, pattern string) ([]Thread, error) {
	if pattern == "" {
		return threads, nil
	}
	ret := []Thread{}
	for _, t := range threads {
		matching, err := glob.Match(pattern, t.DisplayTitle())
		if err != nil {
			return nil, err
		}
		if matching {
			ret = append(ret, t)
		}
	}
	return ret, nil
}
