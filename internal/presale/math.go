package presale

import "math/bits"

// checkedAdd returns a+b or ArithmeticOverflow instead of wrapping.
func checkedAdd(a, b uint64, what string) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, newError(KindArithmeticOverflow, "%s: %d + %d overflows u64", what, a, b)
	}
	return sum, nil
}
