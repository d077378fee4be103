package utils

import (
	"fmt"
	"math"
	"strconv"
)

// FormatAmount renders an amount the way the payment registers do: space as
// thousands separator, comma as decimal separator. 9100.00 -> "9 100,00".
func FormatAmount(value float64) string {
	integerPart := int64(value)
	decimalPart := int64(math.Round((value - float64(integerPart)) * 100))

	s := strconv.FormatInt(integerPart, 10)
	var grouped []byte
	for i, digit := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			grouped = append(grouped, ' ')
		}
		grouped = append(grouped, digit)
	}

	return fmt.Sprintf("%s,%02d", grouped, decimalPart)
}
