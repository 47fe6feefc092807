// Package publicid derives the opaque identifiers handed out for
// applications and tickets in place of their internal ids.
//
// An identifier is the UTC creation time to the millisecond followed by
// a keyed BLAKE2b digest of the record coordinates:
//
//	20260301120000123-3f9a0c4e1b7d25a8e6c0
//
// The time prefix keeps identifiers sortable; the digest cannot be
// computed or reversed without the deployment salt.
package publicid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DefaultHashLen is the number of hex characters kept from the digest.
const DefaultHashLen = 20

const stampLayout = "20060102150405"

// Generator builds identifiers.  The zero value is not usable; Salt must
// be set.
type Generator struct {
	Salt    string
	HashLen int
	Now     func() time.Time
}

// New returns a Generator using the wall clock.
func New(salt string) *Generator {
	return &Generator{Salt: salt, HashLen: DefaultHashLen, Now: time.Now}
}

// Generate derives the identifier for record recordID of scope (the
// owning collection) created under refID (its event or store).  Equal
// inputs at the same instant give equal output; uniqueness is enforced
// by the caller's index.
func (g *Generator) Generate(scope string, recordID, refID uint64) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	return Stamp(now()) + "-" + g.digest(scope, recordID, refID)
}

// Stamp renders t as the 17 digit yyyyMMddHHmmssSSS prefix.
func Stamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%03d", t.Format(stampLayout), t.Nanosecond()/int(time.Millisecond))
}

func (g *Generator) digest(scope string, recordID, refID uint64) string {
	key := []byte(g.Salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// only reachable with an oversized key, handled above
		panic(err)
	}
	var buf [8]byte
	h.Write([]byte(scope))
	h.Write([]byte{0})
	binary.BigEndian.PutUint64(buf[:], refID)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], recordID)
	h.Write(buf[:])

	out := hex.EncodeToString(h.Sum(nil))
	n := g.HashLen
	if n <= 0 || n > len(out) {
		n = DefaultHashLen
	}
	return out[:n]
}
