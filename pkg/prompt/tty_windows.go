//go:build windows

package prompt

import (
	"io"
	"os"
)

func OpenTTY() (io.ReadWriteCloser, error) {
	return os.OpenFile("CONIN$", os.O_RDWR, 0)
}
