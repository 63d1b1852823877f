package database

import (
	"os"
	"time"
)

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}

func at(day, hour int) time.Time {
	return time.Date(2015, 1, day, hour, 0, 0, 0, time.UTC)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func ptrString(s string) *string {
	return &s
}
