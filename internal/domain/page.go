package domain

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ClampPage applies the listing defaults to a requested page. A limit of zero
// or less means DefaultPageSize; negative offsets start at the beginning.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
