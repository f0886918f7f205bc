// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts s with strconv.Atoi, returning def when s is empty or
// not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses raw page/page_size strings and clamps them:
// page >= 1 and 1 <= size <= maxSize, with defSize when size is absent.
func ClampPage(rawPage, rawSize string, defSize, maxSize int) (page, size int) {
	page = max(AtoiDefault(rawPage, 1), 1)
	size = max(AtoiDefault(rawSize, defSize), 1)
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	return page, size
}

// TotalPages is ceil(total/size), zero when size is not positive.
func TotalPages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
