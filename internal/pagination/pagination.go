// Package pagination slices a list into fixed-size pages for the admin
// keyboards.
package pagination

// Window is one page of items.
type Window[T any] struct {
	Items        []T
	Number       int // zero-based page index
	Total        int // length of the whole list
	HavePrevious bool
	HaveNext     bool
}

// Page returns window number of items, pages being size long. The window is
// clipped to the list; an out-of-range page yields no items but keeps the
// navigation flags consistent with the formulas below.
//
//	have_previous = page*size > 0
//	have_next     = (page+1)*size < total
func Page[T any](items []T, number, size int) Window[T] {
	if size < 1 {
		size = 1
	}
	if number < 0 {
		number = 0
	}

	total := len(items)
	// Past the last page number*size may overflow; compare by division.
	inRange := number <= total/size
	start := total
	if inRange {
		start = number * size
	}
	end := min(start+size, total)

	return Window[T]{
		Items:        items[start:end],
		Number:       number,
		Total:        total,
		HavePrevious: number > 0,
		HaveNext:     inRange && (number+1)*size < total,
	}
}
