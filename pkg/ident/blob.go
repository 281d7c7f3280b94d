package ident

import (
	"crypto/sha512"
	"encoding/base64"
	"strings"
)

// BlobID returns the content digest the store keys blobs by: SHA-512,
// standard base64, '+' and '/' replaced by 'X' and 'Y', first 20 characters.
// Two contents are considered equal exactly when their BlobIDs are.
func BlobID(content []byte) string {
	sum := sha512.Sum512(content)
	enc := base64.StdEncoding.EncodeToString(sum[:])
	enc = strings.NewReplacer("+", "X", "/", "Y").Replace(enc)
	return enc[:20]
}
