package service

import (
	"crypto/rand"
	"math/big"
)

// roomIDAlphabet omits characters that are easy to misread when shared aloud.
const (
	roomIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomIDLength   = 6
)

func newRoomID() string {
	buf := make([]byte, roomIDLength)
	limit := big.NewInt(int64(len(roomIDAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(err)
		}
		buf[i] = roomIDAlphabet[n.Int64()]
	}
	return string(buf)
}
