package util

// CeilDiv returns ceil(numerator / denominator) for positive values.
func CeilDiv(numerator int, denominator int) int {
	return (numerator + denominator - 1) / denominator
}

// AlignUp rounds value up to the next multiple of align (align must be a power of two).
func AlignUp(value int, align int) int {
	return (value + align - 1) &^ (align - 1)
}
