// Package validation содержит функции валидации входных данных.
package validation

import "strings"

// NormalizeISBN убирает дефисы и пробелы из ISBN.
func NormalizeISBN(isbn string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, isbn)
}

// IsValidISBN проверяет контрольную цифру ISBN-10 или ISBN-13.
func IsValidISBN(isbn string) bool {
	n := NormalizeISBN(isbn)
	switch len(n) {
	case 10:
		return isValidISBN10(n)
	case 13:
		return isValidISBN13(n)
	default:
		return false
	}
}

func isValidISBN10(n string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		ch := n[i]
		var digit int
		switch {
		case ch >= '0' && ch <= '9':
			digit = int(ch - '0')
		case (ch == 'X' || ch == 'x') && i == 9:
			digit = 10
		default:
			return false
		}
		sum += digit * (10 - i)
	}
	return sum%11 == 0
}

func isValidISBN13(n string) bool {
	sum := 0
	for i := 0; i < 13; i++ {
		ch := n[i]
		if ch < '0' || ch > '9' {
			return false
		}
		digit := int(ch - '0')
		if i%2 == 1 {
			digit *= 3
		}
		sum += digit
	}
	return sum%10 == 0
}
