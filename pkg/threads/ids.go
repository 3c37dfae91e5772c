package threads

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	ThreadIDPrefix = "c_"
	threadIDLength = 8
)

// 36^8, the number of distinct 8 character base36 suffixes.
const threadIDSpace = 2821109907456

// NewThreadID mints a random conversation id of the form c_xxxxxxxx.
func NewThreadID() string {
	u := uuid.New()
	n := binary.BigEndian.Uint64(u[:8]) % threadIDSpace
	suffix := strconv.FormatUint(n, 36)
	if len(suffix) < threadIDLength {
		suffix = strings.Repeat("0", threadIDLength-len(suffix)) + suffix
	}
	return ThreadIDPrefix + suffix
}

func ValidateThreadID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidThreadID
	}
	return nil
}
