package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrintKeyValues_Aligns(t *testing.T) {
	var buf bytes.Buffer

	printKeyValues(&buf, [][2]string{
		{"A", "one"},
		{"Longer", "two"},
	})

	assert.Equal(t, "A:      one\nLonger: two\n", buf.String())
}

func TestFormatTime(t *testing.T) {
	thisYear := time.Date(time.Now().Year(), time.March, 5, 9, 7, 0, 0, time.Local)
	assert.Equal(t, "Mar  5 09:07", formatTime(thisYear))

	old := time.Date(2019, time.November, 21, 9, 7, 0, 0, time.Local)
	assert.Equal(t, "Nov 21  2019", formatTime(old))
}
