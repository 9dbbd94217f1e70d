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

// PRF (伪随机函数) 接口
type PRF interface {
	Hash() hash.Hash
	KeyLen() int
}

type hmacPRF struct {
	newHash func() hash.Hash
	keyLen  int
}

func (h *hmacPRF) Hash() hash.Hash {
	return h.newHash()
}

func (h *hmacPRF) KeyLen() int {
	return h.keyLen
}

// PRFID 伪随机函数标识
type PRFID uint16

const (
	PRF_HMAC_MD5      PRFID = 1
	PRF_HMAC_SHA1     PRFID = 2
	PRF_HMAC_SHA2_256 PRFID = 5
	PRF_HMAC_SHA2_384 PRFID = 6
	PRF_HMAC_SHA2_512 PRFID = 7
)

var (
	prfHMACMD5    = &hmacPRF{newHash: md5.New, keyLen: 16}
	prfHMACSHA1   = &hmacPRF{newHash: sha1.New, keyLen: 20}
	prfHMACSHA256 = &hmacPRF{newHash: sha256.New, keyLen: 32}
	prfHMACSHA384 = &hmacPRF{newHash: sha512.New384, keyLen: 48}
	prfHMACSHA512 = &hmacPRF{newHash: sha512.New, keyLen: 64}
)

// GetPRF 根据 ID 获取 PRF
func GetPRF(id PRFID) (PRF, error) {
	switch id {
	case PRF_HMAC_MD5:
		return prfHMACMD5, nil
	case PRF_HMAC_SHA1:
		return prfHMACSHA1, nil
	case PRF_HMAC_SHA2_256:
		return prfHMACSHA256, nil
	case PRF_HMAC_SHA2_384:
		return prfHMACSHA384, nil
	case PRF_HMAC_SHA2_512:
		return prfHMACSHA512, nil
	default:
		return nil, errors.New("不支持的 PRF ID")
	}
}

// RFC 7296 2.13 节. 生成密钥材料
// prf+ (K,S) = T1 | T2 | T3 | T4 | ...
// T1 = prf (K, S | 0x01)
// T2 = prf (K, T1 | S | 0x02)
// T3 = prf (K, T2 | S | 0x03)
func PrfPlus(prf PRF, key []byte, seed []byte, totalBytes int) ([]byte, error) {
	var result []byte
	var lastBlock []byte
	blockIndex := 1

	for len(result) < totalBytes {
		h := hmac.New(prf.Hash, key)

		if blockIndex > 1 {
			h.Write(lastBlock)
		}
		h.Write(seed)
		h.Write([]byte{byte(blockIndex)})

		lastBlock = h.Sum(nil)
		result = append(result, lastBlock...)
		blockIndex++

		if blockIndex > 255 {
			return nil, errors.New("PRF+ 溢出: 块太多")
		}
	}

	return result[:totalBytes], nil
}

// PRFPlus 流式 prf+ 读取器
// Child SA 按协议和方向依次取密钥时使用，用完必须 Destroy 清零
type PRFPlus struct {
	prf   PRF
	key   []byte
	seed  []byte
	last  []byte
	buf   []byte
	index int
}

// NewPRFPlus 创建流式 prf+ (拷贝 key 和 seed)
func NewPRFPlus(prf PRF, key, seed []byte) *PRFPlus {
	return &PRFPlus{
		prf:   prf,
		key:   append([]byte(nil), key...),
		seed:  append([]byte(nil), seed...),
		index: 1,
	}
}

// Bytes 从密钥流取出接下来的 n 字节
func (p *PRFPlus) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.New("无效的密钥长度")
	}
	for len(p.buf) < n {
		if p.index > 255 {
			return nil, errors.New("PRF+ 溢出: 块太多")
		}
		h := hmac.New(p.prf.Hash, p.key)
		if p.index > 1 {
			h.Write(p.last)
		}
		h.Write(p.seed)
		h.Write([]byte{byte(p.index)})
		p.last = h.Sum(nil)
		p.buf = append(p.buf, p.last...)
		p.index++
	}
	out := append([]byte(nil), p.buf[:n]...)
	Zero(p.buf[:n])
	p.buf = p.buf[n:]
	return out, nil
}

// Destroy 清零所有内部密钥状态
func (p *PRFPlus) Destroy() {
	Zero(p.key)
	Zero(p.seed)
	Zero(p.last)
	Zero(p.buf)
	p.buf = nil
}

// Zero 清零敏感字节
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
