package db

import (
	"strconv"

	"github.com/lib/pq"
)

func pqStringArray(ids []string) interface{} {
	return pq.Array(ids)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
