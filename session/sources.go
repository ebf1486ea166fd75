package session

import (
	"errors"
	"fmt"
)

// SourceCount is the fixed number of editable source slots.
const SourceCount = 3

var ErrSourceIndex = errors.New("source index out of range")

// SourceList holds the editable source URLs in display order.
type SourceList [SourceCount]string

// Set returns a copy of the list with position index replaced by value.
func (l SourceList) Set(index int, value string) (SourceList, error) {
	if index < 0 || index >= SourceCount {
		return l, fmt.Errorf("%w: %d not in [0, %d)", ErrSourceIndex, index, SourceCount)
	}
	l[index] = value
	return l, nil
}

func (l SourceList) Slice() []string {
	out := make([]string, SourceCount)
	copy(out, l[:])
	return out
}

// SourcesFrom fills a list from values in order; missing positions stay empty
// and values beyond SourceCount are ignored.
func SourcesFrom(values []string) SourceList {
	var l SourceList
	copy(l[:], values)
	return l
}
