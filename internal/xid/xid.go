package xid

import "github.com/google/uuid"

// New returns a random identifier such as "sale-3f0c...". The prefix keeps
// ids of different record kinds apart in logs.
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
