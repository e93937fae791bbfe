package utils

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

const (
	RoomCodeLength = 6
	// no 0/O or 1/I so codes survive being read aloud
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

func GenerateID() string {
	return uuid.NewString()
}

// GenerateRoomCode returns a short uppercase join code.
func GenerateRoomCode() (string, error) {
	code := make([]byte, RoomCodeLength)
	limit := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range code {
		n, err := crand.Int(crand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
