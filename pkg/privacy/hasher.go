// Package privacy provides irreversible identity hashing and redaction of
// user-visible failure notices. The inline pipeline never stores or logs raw
// chat or user identifiers; everything downstream of the dispatcher sees only
// salted hashes.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Hasher derives irreversible identifiers from raw platform ids.
// The salt is a process-wide secret and must never be logged.
type Hasher struct {
	salt string
}

// NewHasher creates a Hasher with the given secret salt.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// HashChatID returns hex(sha256(salt || ":" || chat_id)).
func (h *Hasher) HashChatID(chatID int64) string {
	return h.hash(strconv.FormatInt(chatID, 10))
}

// HashUserID returns hex(sha256(salt || ":" || user_id)).
func (h *Hasher) HashUserID(userID int64) string {
	return h.hash(strconv.FormatInt(userID, 10))
}

func (h *Hasher) hash(id string) string {
	sum := sha256.Sum256([]byte(h.salt + ":" + id))
	return hex.EncodeToString(sum[:])
}
