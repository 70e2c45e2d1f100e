package utils

// MatchObjectRef checks if an object reference such as "activity_group:g1"
// or "event:e1/ticket_type:MEMBER" matches pattern. An empty pattern matches
// everything. '*' matches any run of characters up to the next '/', or the
// whole remainder when it ends the pattern.
func MatchObjectRef(value, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	return matchPattern(value, pattern)
}

func matchPattern(value, pattern string) bool {
	vIndex, pIndex := 0, 0
	vLen, pLen := len(value), len(pattern)

	for pIndex < pLen {
		switch pattern[pIndex] {
		case '*':
			if pIndex == pLen-1 {
				return true
			}
			for vIndex < vLen && value[vIndex] != '/' {
				vIndex++
			}
			pIndex++
		default:
			if vIndex < vLen && pattern[pIndex] == value[vIndex] {
				vIndex++
				pIndex++
			} else {
				return false
			}
		}
	}
	return vIndex == vLen
}
