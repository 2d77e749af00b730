package shared

import (
	"fmt"
	"time"
)

// DocumentNumberLockKey builds the advisory lock key guarding a daily numbering sequence.
func DocumentNumberLockKey(prefix string, day time.Time) string {
	return fmt.Sprintf("docnum:%s:%s", prefix, day.Format("20060102"))
}
