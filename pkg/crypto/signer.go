package crypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"
)

// SignerID 完整性算法标识
type SignerID uint16

const (
	AUTH_HMAC_MD5_128      SignerID = 1
	AUTH_HMAC_SHA1_160     SignerID = 2
	AUTH_HMAC_SHA2_256_256 SignerID = 3
	AUTH_HMAC_SHA2_384_384 SignerID = 4
)

// Signer 有状态的完整性算法实例
// 先 SetKey 绑定密钥，之后 Sign/Verify 使用该密钥
type Signer interface {
	// SetKey 绑定 MAC 密钥 (内部拷贝)
	SetKey(key []byte)
	// Sign 计算 MAC
	Sign(data []byte) []byte
	// Verify 验证 MAC
	Verify(data, expectedMAC []byte) bool
	// KeySize 密钥长度
	KeySize() int
	// OutputSize MAC 输出长度
	OutputSize() int
}

// 全长 HMAC (不截断)，用于记录层保护
type hmacSigner struct {
	newHash func() hash.Hash
	keySize int
	outSize int
	key     []byte
}

func (s *hmacSigner) SetKey(key []byte) {
	Zero(s.key)
	s.key = append([]byte(nil), key...)
}

func (s *hmacSigner) Sign(data []byte) []byte {
	mac := hmac.New(s.newHash, s.key)
	mac.Write(data)
	return mac.Sum(nil)
}

func (s *hmacSigner) Verify(data, expectedMAC []byte) bool {
	return hmac.Equal(s.Sign(data), expectedMAC)
}

func (s *hmacSigner) KeySize() int    { return s.keySize }
func (s *hmacSigner) OutputSize() int { return s.outSize }

// GetSigner 根据 ID 创建完整性算法实例
func GetSigner(id SignerID) (Signer, error) {
	switch id {
	case AUTH_HMAC_MD5_128:
		return &hmacSigner{newHash: md5.New, keySize: 16, outSize: 16}, nil
	case AUTH_HMAC_SHA1_160:
		return &hmacSigner{newHash: sha1.New, keySize: 20, outSize: 20}, nil
	case AUTH_HMAC_SHA2_256_256:
		return &hmacSigner{newHash: sha256.New, keySize: 32, outSize: 32}, nil
	case AUTH_HMAC_SHA2_384_384:
		return &hmacSigner{newHash: sha512.New384, keySize: 48, outSize: 48}, nil
	default:
		return nil, errors.New("不支持的完整性算法")
	}
}
