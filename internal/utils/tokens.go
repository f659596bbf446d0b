package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strconv"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// NewToken возвращает nBytes случайных байт в виде lowercase hex.
func NewToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32 // 256 бит по умолчанию
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewNumericCode возвращает шестизначный код, равномерно распределённый
// в [100000, 999999] (900000 значений, без ведущих нулей).
func NewNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}
