package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Vasu1712/scenyx-securechat/internal/errs"
)

const (
	// ChunkSize is the plaintext bytes per OAEP block. OAEP-SHA1 on a
	// 2048-bit key allows 256-2*20-2 = 214 bytes; 190 leaves headroom and
	// matches what existing peers produce.
	ChunkSize = 190

	// ChunkDelimiter separates base64 chunks. '|' is not in the base64 alphabet.
	ChunkDelimiter = "||"
)

// chunkSize returns the chunk size usable with pub.
func chunkSize(pub *rsa.PublicKey) int {
	limit := pub.Size() - 2*sha1.Size - 2
	if limit < ChunkSize {
		return limit
	}
	return ChunkSize
}

// splitChunks cuts b into pieces of at most size bytes without splitting a
// UTF-8 sequence, unless a single rune is longer than size.
func splitChunks(b []byte, size int) [][]byte {
	var chunks [][]byte
	for len(b) > 0 {
		end := size
		if end >= len(b) {
			chunks = append(chunks, b)
			break
		}
		for end > 0 && !utf8.RuneStart(b[end]) {
			end--
		}
		if end == 0 {
			end = size
		}
		chunks = append(chunks, b[:end])
		b = b[end:]
	}
	return chunks
}

// EncryptText encrypts plaintext for the holder of pub. Empty plaintext
// yields an empty ciphertext.
func EncryptText(pub *rsa.PublicKey, plaintext string) (string, error) {
	const op = "crypto.EncryptText"
	if pub == nil {
		return "", errs.E(errs.Crypto, op, ErrInvalidKey)
	}
	size := chunkSize(pub)
	if size <= 0 {
		return "", errs.E(errs.Crypto, op, ErrInvalidKey)
	}

	chunks := splitChunks([]byte(plaintext), size)
	encoded := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		ct, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, chunk, nil)
		if err != nil {
			return "", errs.E(errs.Crypto, op, fmt.Errorf("chunk %d: %w: %v", i, ErrEncryptionFailed, err))
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(ct))
	}
	return strings.Join(encoded, ChunkDelimiter), nil
}

// DecryptText reverses EncryptText. A failure in any chunk fails the whole
// message.
func DecryptText(priv *rsa.PrivateKey, ciphertext string) (string, error) {
	const op = "crypto.DecryptText"
	if ciphertext == "" {
		return "", nil
	}
	if priv == nil {
		return "", errs.E(errs.Crypto, op, ErrInvalidKey)
	}

	var out []byte
	for i, chunk := range strings.Split(ciphertext, ChunkDelimiter) {
		if chunk == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(chunk)
		if err != nil {
			return "", errs.E(errs.Crypto, op, fmt.Errorf("chunk %d: %w: %v", i, ErrDecryptionFailed, err))
		}
		pt, err := rsa.DecryptOAEP(sha1.New(), nil, priv, raw, nil)
		if err != nil {
			return "", errs.E(errs.Crypto, op, fmt.Errorf("chunk %d: %w", i, ErrDecryptionFailed))
		}
		out = append(out, pt...)
	}
	return string(out), nil
}
