// Package attempts counts failed answers per (user, question) and keeps an
// audit log of every graded submission. Raw answers are never stored; the
// log holds a keyed blake2b digest of the normalized answer.
package attempts

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

type Attempt struct {
	SubmissionID string
	UserID       string
	QuestionID   int64
	Digest       []byte
	Correct      bool
	At           time.Time
}

// Store records attempts and owns the failed-attempt counter.
type Store interface {
	// Record appends a to the audit log and, when it is incorrect, bumps the
	// counter. It returns the failed count after the write.
	Record(ctx context.Context, a Attempt) (failed int, err error)
	// Reset zeroes the counter once the question resolves.
	Reset(ctx context.Context, userID string, questionID int64) error
}

// Digester hashes answers for the audit log.
type Digester struct {
	key []byte
}

// NewDigester accepts keys of up to 64 bytes; an empty key hashes unkeyed.
func NewDigester(key []byte) (Digester, error) {
	if len(key) > blake2b.Size {
		return Digester{}, fmt.Errorf("attempts: digest key longer than %d bytes", blake2b.Size)
	}
	return Digester{key: key}, nil
}

func (d Digester) Digest(normalizedAnswer string) []byte {
	h, err := blake2b.New256(d.key)
	if err != nil {
		// Unreachable: the key length is checked by NewDigester.
		panic(err)
	}
	h.Write([]byte(normalizedAnswer))
	return h.Sum(nil)
}
