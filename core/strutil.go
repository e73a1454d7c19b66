package core

// itoa converts an integer to a string without using fmt package
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa64(uint64(-int64(n)))
	}
	return utoa64(uint64(n))
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	return utoa64(uint64(n))
}

func utoa64(n uint64) string {
	var buf [20]byte
	pos := len(buf)
	for {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return string(buf[pos:])
}
