package signal

import (
	"errors"

	"github.com/dkeye/Huddle/internal/protocol"
)

// errorMessage is the text shown to the client for err.
func errorMessage(err error) string {
	if errors.Is(err, protocol.ErrMalformed) {
		return "Invalid message format"
	}
	return err.Error()
}
