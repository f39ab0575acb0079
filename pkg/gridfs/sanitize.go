package gridfs

import (
	"math/rand"
	"regexp"
)

// unsafeFilenameChars matches every character outside the safe set allowed
// in attached filenames.
var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9 $_.+!*'(),-]+`)

// SanitizeFilename strips all characters outside [A-Za-z0-9 $_.+!*'(),-]
// from name. The function is pure and idempotent: sanitizing an already
// sanitized name returns it unchanged.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "")
}

const randomNameLength = 15

const randomNameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomFilename synthesizes a filename for uploads that carry no usable
// name hint.
func randomFilename() string {
	b := make([]byte, randomNameLength)
	for i := range b {
		b[i] = randomNameAlphabet[rand.Intn(len(randomNameAlphabet))]
	}
	return string(b)
}
