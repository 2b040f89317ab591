package admission

// utilitários pequenos para formatação consistente de valores em headers.

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

// formatUnix arredonda para cima: o cliente nunca deve tentar antes do reset.
func formatUnix(t time.Time) string {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}
	return formatInt64(sec)
}

// retryAfterSeconds arredonda para cima, mínimo 1s.
func retryAfterSeconds(d time.Duration) string {
	sec := int64((d + time.Second - 1) / time.Second)
	if sec < 1 {
		sec = 1
	}
	return formatInt64(sec)
}
