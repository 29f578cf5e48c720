package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteCountSI(t *testing.T) {
	tests := map[int]string{
		0:                   "0 B",
		420:                 "420 B",
		999:                 "999 B",
		1000:                "1.0 kB",
		2500:                "2.5 kB",
		MaxRequestBodyBytes: "1.0 MB",
		1500000000:          "1.5 GB",
	}
	for bytes, want := range tests {
		assert.Equal(t, want, ByteCountSI(bytes), "bytes=%d", bytes)
	}
}
