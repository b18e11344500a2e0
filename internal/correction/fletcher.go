package correction

// Fletcher255 computes the 16-bit checksum used by CADDX NX panel frames.
// Both running sums live in 0..254: a byte that would carry past 255 bumps
// the sum by one before the uint8 wrap, and a sum landing on exactly 255
// folds to 0. The result is (sum1 << 8) | sum2.
func Fletcher255(data []byte) uint16 {
	var sum1, sum2 uint8

	for _, b := range data {
		if 255-sum1 < b {
			sum1++
		}
		sum1 += b
		if sum1 == 255 {
			sum1 = 0
		}

		if 255-sum2 < sum1 {
			sum2++
		}
		sum2 += sum1
		if sum2 == 255 {
			sum2 = 0
		}
	}

	return uint16(sum1)<<8 | uint16(sum2)
}

// Fletcher255Check reports whether data carries the expected checksum.
func Fletcher255Check(data []byte, checksum uint16) bool {
	return Fletcher255(data) == checksum
}
