package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/Vasu1712/scenyx-securechat/internal/errs"
)

// AudioMode selects the symmetric construction used for voice payloads.
type AudioMode string

const (
	// ModeCBC is AES-256-CBC with zero padding and a fresh random IV sent
	// alongside the ciphertext. Wire compatible with existing peers; carries
	// no integrity tag.
	ModeCBC AudioMode = "cbc"

	// ModeLegacy is ModeCBC with the static all-zero IV that old peers
	// assume when no IV is sent. Only for talking to such peers.
	ModeLegacy AudioMode = "legacy"

	// ModeSealed is XChaCha20-Poly1305 with a fresh nonce. Authenticated;
	// not understood by CBC-only peers.
	ModeSealed AudioMode = "sealed"
)

const sessionKeySize = 32

var sealedAAD = []byte("securechat-audio-v1")

// ParseAudioMode validates a configured mode name. Empty means ModeCBC.
func ParseAudioMode(s string) (AudioMode, error) {
	switch AudioMode(s) {
	case "", ModeCBC:
		return ModeCBC, nil
	case ModeLegacy, ModeSealed:
		return AudioMode(s), nil
	}
	return "", fmt.Errorf("unknown audio mode %q", s)
}

// AudioEnvelope is an encrypted voice payload. All fields are base64.
// SelfSessionKey is the same session key wrapped for the sender, so the
// sender can play back its own message; it is empty when not requested.
type AudioEnvelope struct {
	Audio          string
	SessionKey     string
	SelfSessionKey string
	IV             string
	Mode           AudioMode
}

// EncryptAudio encrypts raw for the holder of pub.
func EncryptAudio(pub *rsa.PublicKey, raw []byte, mode AudioMode) (*AudioEnvelope, error) {
	return EncryptAudioFor(mode, raw, pub, nil)
}

// EncryptAudioFor encrypts raw once and wraps the session key for peer and,
// when self is non-nil, for self as well.
func EncryptAudioFor(mode AudioMode, raw []byte, peer, self *rsa.PublicKey) (*AudioEnvelope, error) {
	const op = "crypto.EncryptAudio"
	if peer == nil {
		return nil, errs.E(errs.Crypto, op, ErrInvalidKey)
	}
	if mode == "" {
		mode = ModeCBC
	}

	key := make([]byte, sessionKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errs.E(errs.Crypto, op, err)
	}

	var (
		ct, iv []byte
		err    error
	)
	switch mode {
	case ModeCBC:
		iv = make([]byte, aes.BlockSize)
		if _, err = rand.Read(iv); err != nil {
			return nil, errs.E(errs.Crypto, op, err)
		}
		ct, err = cbcEncrypt(key, iv, raw)
	case ModeLegacy:
		logrus.WithFields(logrus.Fields{
			"component": "crypto",
			"mode":      mode,
		}).Warn("Encrypting audio with static IV for legacy peer")
		ct, err = cbcEncrypt(key, make([]byte, aes.BlockSize), raw)
	case ModeSealed:
		iv = make([]byte, chacha20poly1305.NonceSizeX)
		if _, err = rand.Read(iv); err != nil {
			return nil, errs.E(errs.Crypto, op, err)
		}
		ct, err = sealedEncrypt(key, iv, raw)
	default:
		return nil, errs.E(errs.Crypto, op, fmt.Errorf("unknown audio mode %q", mode))
	}
	if err != nil {
		return nil, errs.E(errs.Crypto, op, fmt.Errorf("%w: %v", ErrEncryptionFailed, err))
	}

	env := &AudioEnvelope{
		Audio: base64.StdEncoding.EncodeToString(ct),
		Mode:  mode,
	}
	if iv != nil {
		env.IV = base64.StdEncoding.EncodeToString(iv)
	}
	if env.SessionKey, err = wrapKey(peer, key); err != nil {
		return nil, errs.E(errs.Crypto, op, err)
	}
	if self != nil {
		if env.SelfSessionKey, err = wrapKey(self, key); err != nil {
			return nil, errs.E(errs.Crypto, op, err)
		}
	}
	return env, nil
}

// DecryptAudio reverses EncryptAudio using the wrapped session key meant for
// priv. An empty mode is inferred: no IV means ModeLegacy, otherwise ModeCBC.
// For the CBC modes trailing zero bytes of the payload are lost with the
// padding.
func DecryptAudio(priv *rsa.PrivateKey, audio, wrappedKey, iv string, mode AudioMode) ([]byte, error) {
	const op = "crypto.DecryptAudio"
	if priv == nil {
		return nil, errs.E(errs.Crypto, op, ErrInvalidKey)
	}
	if mode == "" {
		mode = ModeCBC
		if iv == "" {
			mode = ModeLegacy
		}
	}

	key, err := unwrapKey(priv, wrappedKey)
	if err != nil {
		return nil, errs.E(errs.Crypto, op, err)
	}
	ct, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		return nil, errs.E(errs.Crypto, op, fmt.Errorf("%w: audio: %v", ErrDecryptionFailed, err))
	}

	var ivBytes []byte
	switch mode {
	case ModeLegacy:
		ivBytes = make([]byte, aes.BlockSize)
	case ModeCBC, ModeSealed:
		if ivBytes, err = base64.StdEncoding.DecodeString(iv); err != nil {
			return nil, errs.E(errs.Crypto, op, fmt.Errorf("%w: iv: %v", ErrDecryptionFailed, err))
		}
	default:
		return nil, errs.E(errs.Crypto, op, fmt.Errorf("unknown audio mode %q", mode))
	}

	var pt []byte
	if mode == ModeSealed {
		pt, err = sealedDecrypt(key, ivBytes, ct)
	} else {
		pt, err = cbcDecrypt(key, ivBytes, ct)
	}
	if err != nil {
		return nil, errs.E(errs.Crypto, op, fmt.Errorf("%w: %v", ErrDecryptionFailed, err))
	}
	return pt, nil
}

func wrapKey(pub *rsa.PublicKey, key []byte) (string, error) {
	ct, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", fmt.Errorf("%w: session key: %v", ErrEncryptionFailed, err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

func unwrapKey(priv *rsa.PrivateKey, wrapped string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: session key: %v", ErrDecryptionFailed, err)
	}
	key, err := rsa.DecryptOAEP(sha1.New(), nil, priv, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: session key", ErrDecryptionFailed)
	}
	if len(key) != sessionKeySize {
		return nil, fmt.Errorf("%w: session key length %d", ErrDecryptionFailed, len(key))
	}
	return key, nil
}

// zeroPad always appends between 1 and aes.BlockSize zero bytes.
func zeroPad(raw []byte) []byte {
	padLen := aes.BlockSize - len(raw)%aes.BlockSize
	padded := make([]byte, len(raw)+padLen)
	copy(padded, raw)
	return padded
}

func cbcEncrypt(key, iv, raw []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := zeroPad(raw)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(padded, padded)
	return padded, nil
}

func cbcDecrypt(key, iv, ct []byte) ([]byte, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("iv length %d", len(iv))
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a positive multiple of the block size", len(ct))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)
	return bytes.TrimRight(pt, "\x00"), nil
}

func sealedEncrypt(key, nonce, raw []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, raw, sealedAAD), nil
}

func sealedDecrypt(key, nonce, ct []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("nonce length %d", len(nonce))
	}
	return aead.Open(nil, nonce, ct, sealedAAD)
}
