package mail

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// validateLatin1 rejects values the SMTP AUTH exchange cannot carry, so a
// bad password fails with a readable error instead of a protocol reply.
func validateLatin1(field, value string) error {
	for i, r := range value {
		if _, ok := charmap.ISO8859_1.EncodeRune(r); !ok {
			return fmt.Errorf("%w: %s contains %q at byte %d", ErrInvalidCredentials, field, r, i)
		}
	}
	return nil
}
