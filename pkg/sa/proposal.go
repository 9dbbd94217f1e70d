package sa

import "errors"

// AlgorithmID IKEv2 变换 ID (传输注册值)
type AlgorithmID uint16

const (
	ENCR_3DES       AlgorithmID = 3
	ENCR_AES_CBC    AlgorithmID = 12
	ENCR_AES_CTR    AlgorithmID = 13
	ENCR_AES_GCM_8  AlgorithmID = 18
	ENCR_AES_GCM_12 AlgorithmID = 19
	ENCR_AES_GCM_16 AlgorithmID = 20

	AUTH_HMAC_MD5_96       AlgorithmID = 1
	AUTH_HMAC_SHA1_96      AlgorithmID = 2
	AUTH_HMAC_SHA2_256_128 AlgorithmID = 12
	AUTH_HMAC_SHA2_384_192 AlgorithmID = 13
	AUTH_HMAC_SHA2_512_256 AlgorithmID = 14
)

// IsAEAD 判断加密算法是否为 AEAD
func IsAEAD(id AlgorithmID) bool {
	switch id {
	case ENCR_AES_GCM_8, ENCR_AES_GCM_12, ENCR_AES_GCM_16:
		return true
	default:
		return false
	}
}

// aeadSaltLen AEAD 密钥尾部的 salt 长度 (RFC 4106)
const aeadSaltLen = 4

// Proposal 协商提议: 协议集合、算法组合、提议中携带的 SPI
// SPI 表存放提议发送方的入站 SPI，alloc/add 写回本端分配值。
type Proposal struct {
	Protocols   []Protocol
	EncrID      AlgorithmID
	EncrKeyBits int
	// IntegID AEAD 时为 0
	IntegID AlgorithmID
	SPI     map[Protocol]uint32
}

// NewProposal 创建提议
func NewProposal(protocols ...Protocol) *Proposal {
	return &Proposal{
		Protocols: protocols,
		SPI:       make(map[Protocol]uint32),
	}
}

// EncrKeyLen 加密密钥字节数 (AEAD 含 salt)
func (p *Proposal) EncrKeyLen() (int, error) {
	bits := p.EncrKeyBits
	if bits == 0 {
		switch p.EncrID {
		case ENCR_3DES:
			bits = 192
		default:
			bits = 128
		}
	}
	if bits%8 != 0 {
		return 0, errors.New("无效的密钥位数")
	}
	n := bits / 8
	if IsAEAD(p.EncrID) {
		n += aeadSaltLen
	}
	return n, nil
}

// IntegKeyLen 完整性密钥字节数，AEAD 为 0
func (p *Proposal) IntegKeyLen() (int, error) {
	if IsAEAD(p.EncrID) || p.IntegID == 0 {
		return 0, nil
	}
	switch p.IntegID {
	case AUTH_HMAC_MD5_96:
		return 16, nil
	case AUTH_HMAC_SHA1_96:
		return 20, nil
	case AUTH_HMAC_SHA2_256_128:
		return 32, nil
	case AUTH_HMAC_SHA2_384_192:
		return 48, nil
	case AUTH_HMAC_SHA2_512_256:
		return 64, nil
	default:
		return 0, errors.New("不支持的完整性算法")
	}
}
