package similarity

import "strings"

var soundexCodes = map[byte]byte{
	'B': '1', 'F': '1', 'P': '1', 'V': '1',
	'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
	'D': '3', 'T': '3',
	'L': '4',
	'M': '5', 'N': '5',
	'R': '6',
}

// Soundex returns the four-character American Soundex code for a name, or
// the empty string when the input has no leading letter.
func Soundex(text string) string {
	text = strings.ToUpper(strings.TrimSpace(text))
	start := -1
	for i := 0; i < len(text); i++ {
		if text[i] >= 'A' && text[i] <= 'Z' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	var result strings.Builder
	result.WriteByte(text[start])
	prevCode := soundexCodes[text[start]]
	for i := start + 1; i < len(text) && result.Len() < 4; i++ {
		c := text[i]
		if c < 'A' || c > 'Z' {
			continue
		}
		code := soundexCodes[c]
		switch {
		case code == 0:
			// H and W are transparent to adjacency; vowels reset it.
			if c != 'H' && c != 'W' {
				prevCode = 0
			}
		case code != prevCode:
			result.WriteByte(code)
			prevCode = code
		}
	}
	for result.Len() < 4 {
		result.WriteByte('0')
	}
	return result.String()
}
