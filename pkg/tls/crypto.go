package tls

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/muvarov/strongswan/pkg/crypto"
	"github.com/muvarov/strongswan/pkg/logger"
)

// Version TLS 协议版本
type Version uint16

const (
	TLS10 Version = 0x0301
	TLS11 Version = 0x0302
	TLS12 Version = 0x0303
)

// Role 会话角色，决定密钥块哪一半映射到哪个方向
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

var (
	// ErrNoAcceptableSuite 协商失败: 没有双方都支持且可实例化的套件
	ErrNoAcceptableSuite = errors.New("没有可接受的密码套件")
	// ErrPrimitiveUnavailable 注册表无法实例化套件所需的算法
	ErrPrimitiveUnavailable = errors.New("算法运行时不可用")
	// ErrInvalidDerivationInput 密钥派生输入长度非法
	ErrInvalidDerivationInput = errors.New("无效的密钥派生输入")
)

const randomLen = 32

// Crypto 会话密钥引擎
// 负责套件协商、主密钥与密钥块派生、方向性密钥绑定和切换。
// 单实例非并发安全，由所属的握手状态机独占使用。
type Crypto struct {
	registry crypto.Registry
	version  Version
	role     Role
	log      *zap.Logger

	// 本地支持的套件列表 (去重，保持优先级顺序)
	suites []CipherSuite
	// 协商选中的套件
	suite CipherSuite

	prf PRF

	// 派生出的待生效原语，ChangeCipher 后成为活动原语
	signerIn   crypto.Signer
	signerOut  crypto.Signer
	crypterIn  crypto.Crypter
	crypterOut crypto.Crypter
	ivIn       []byte
	ivOut      []byte

	// 每个方向的待生效标记，防止重复切换
	pendingIn  bool
	pendingOut bool

	activeSignerIn   crypto.Signer
	activeSignerOut  crypto.Signer
	activeCrypterIn  crypto.Crypter
	activeCrypterOut crypto.Crypter
	activeIVIn       []byte
	activeIVOut      []byte
}

// NewCrypto 创建会话密钥引擎并构建本地套件列表
func NewCrypto(registry crypto.Registry, version Version, role Role) *Crypto {
	c := &Crypto{
		registry: registry,
		version:  version,
		role:     role,
		log:      logger.Named("tls"),
	}
	c.buildCipherSuiteList()
	return c
}

// buildCipherSuiteList 根据注册表能力展开套件列表
// 注册表可能枚举出目录中没有的算法，直接跳过
func (c *Crypto) buildCipherSuiteList() {
	var supported []CipherSuite

	for _, mac := range c.registry.Signers() {
		switch mac {
		case crypto.AUTH_HMAC_SHA1_160:
			supported = append(supported, TLS_RSA_WITH_NULL_SHA)
		case crypto.AUTH_HMAC_SHA2_256_256:
			supported = append(supported, TLS_RSA_WITH_NULL_SHA256)
		case crypto.AUTH_HMAC_MD5_128:
			supported = append(supported, TLS_RSA_WITH_NULL_MD5)
		default:
			continue
		}
		for _, encr := range c.registry.Crypters() {
			switch encr {
			case crypto.ENCR_AES_CBC:
				switch mac {
				case crypto.AUTH_HMAC_SHA1_160:
					supported = append(supported,
						TLS_RSA_WITH_AES_128_CBC_SHA,
						TLS_RSA_WITH_AES_256_CBC_SHA)
				case crypto.AUTH_HMAC_SHA2_256_256:
					supported = append(supported,
						TLS_RSA_WITH_AES_128_CBC_SHA256)
				}
			case crypto.ENCR_3DES:
				if mac == crypto.AUTH_HMAC_SHA1_160 {
					supported = append(supported,
						TLS_RSA_WITH_3DES_EDE_CBC_SHA)
				}
			}
		}
	}

	// 去重，保留首次出现的顺序
	seen := make(map[CipherSuite]bool, len(supported))
	c.suites = c.suites[:0]
	for _, s := range supported {
		if !seen[s] {
			seen[s] = true
			c.suites = append(c.suites, s)
		}
	}
}

// CipherSuites 返回本地支持的套件列表
func (c *Crypto) CipherSuites() []CipherSuite {
	return c.suites
}

// Suite 返回协商选中的套件，未协商时为 0
func (c *Crypto) Suite() CipherSuite {
	return c.suite
}

// SelectCipherSuite 从对端提供的列表中选择套件
// 本地优先级外层循环: 响应方配置的顺序优先，而不是对端顺序。
// 套件匹配但算法实例化失败时继续尝试下一个候选。
func (c *Crypto) SelectCipherSuite(peer []CipherSuite) (CipherSuite, error) {
	var lastErr error
	for _, local := range c.suites {
		for _, offered := range peer {
			if local != offered {
				continue
			}
			if err := c.createCiphers(local); err != nil {
				c.log.Debug("套件算法不可用，尝试下一个候选",
					zap.Uint16("suite", uint16(local)), zap.Error(err))
				lastErr = err
				continue
			}
			c.suite = local
			return local, nil
		}
	}
	if lastErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoAcceptableSuite, lastErr)
	}
	return 0, ErrNoAcceptableSuite
}

// createCiphers 为套件实例化 PRF、双向完整性和加密原语
func (c *Crypto) createCiphers(suite CipherSuite) error {
	algs := findSuite(suite)
	if algs == nil {
		return fmt.Errorf("%w: 套件 0x%04x 不在目录中", ErrPrimitiveUnavailable, uint16(suite))
	}

	if c.version < TLS12 {
		c.prf = NewPRF10()
	} else {
		prf, err := NewPRF12(c.registry, algs.prf)
		if err != nil {
			return fmt.Errorf("%w: PRF %d: %v", ErrPrimitiveUnavailable, algs.prf, err)
		}
		c.prf = prf
	}

	signerIn, err := c.registry.CreateSigner(algs.mac)
	if err != nil {
		return fmt.Errorf("%w: MAC %d: %v", ErrPrimitiveUnavailable, algs.mac, err)
	}
	signerOut, err := c.registry.CreateSigner(algs.mac)
	if err != nil {
		return fmt.Errorf("%w: MAC %d: %v", ErrPrimitiveUnavailable, algs.mac, err)
	}
	c.signerIn, c.signerOut = signerIn, signerOut

	// NULL 加密套件只有完整性保护，没有加密实例
	if algs.encr == crypto.ENCR_NULL {
		c.crypterIn, c.crypterOut = nil, nil
		return nil
	}
	crypterIn, err := c.registry.CreateCrypter(algs.encr, algs.encrSize)
	if err != nil {
		return fmt.Errorf("%w: 加密算法 %d: %v", ErrPrimitiveUnavailable, algs.encr, err)
	}
	crypterOut, err := c.registry.CreateCrypter(algs.encr, algs.encrSize)
	if err != nil {
		return fmt.Errorf("%w: 加密算法 %d: %v", ErrPrimitiveUnavailable, algs.encr, err)
	}
	c.crypterIn, c.crypterOut = crypterIn, crypterOut
	return nil
}

// DeriveMasterSecret 从 premaster 派生主密钥和密钥块并绑定方向性密钥
// premaster 在主密钥派生后被清零，密钥块切分后立即清零。
func (c *Crypto) DeriveMasterSecret(premaster, clientRandom, serverRandom []byte) error {
	if c.prf == nil || c.signerOut == nil {
		return fmt.Errorf("%w: 套件尚未协商", ErrInvalidDerivationInput)
	}
	if len(premaster) == 0 {
		return fmt.Errorf("%w: premaster 为空", ErrInvalidDerivationInput)
	}
	if len(clientRandom) != randomLen || len(serverRandom) != randomLen {
		return fmt.Errorf("%w: random 必须为 %d 字节", ErrInvalidDerivationInput, randomLen)
	}

	master := deriveMasterSecret(c.prf, premaster, clientRandom, serverRandom)
	crypto.Zero(premaster)

	c.prf.SetKey(master)
	crypto.Zero(master)

	mks := c.signerOut.KeySize()
	eks, ivs := 0, 0
	if c.crypterOut != nil {
		eks = c.crypterOut.KeySize()
		// TLS 1.2 起 IV 按记录生成，不再从密钥块派生
		if c.version < TLS12 {
			ivs = c.crypterOut.BlockSize()
		}
	}

	block := deriveKeyBlock(c.prf, clientRandom, serverRandom, mks, eks, ivs)
	c.assignKeyBlock(block, mks, eks, ivs)
	crypto.Zero(block)

	c.pendingIn, c.pendingOut = true, true
	return nil
}

// assignKeyBlock 按角色把密钥块切片绑定到方向性原语
// 切片顺序: client-MAC | server-MAC | client-enc | server-enc | client-IV | server-IV
// 服务端的入站用 client-write 材料，客户端反之。
func (c *Crypto) assignKeyBlock(block []byte, mks, eks, ivs int) {
	clientWrite := block[:mks]
	serverWrite := block[mks : mks*2]
	block = block[mks*2:]

	if c.role == RoleServer {
		c.signerIn.SetKey(clientWrite)
		c.signerOut.SetKey(serverWrite)
	} else {
		c.signerOut.SetKey(clientWrite)
		c.signerIn.SetKey(serverWrite)
	}

	if c.crypterIn == nil || c.crypterOut == nil {
		return
	}

	clientWrite = block[:eks]
	serverWrite = block[eks : eks*2]
	block = block[eks*2:]

	if c.role == RoleServer {
		c.crypterIn.SetKey(clientWrite)
		c.crypterOut.SetKey(serverWrite)
	} else {
		c.crypterOut.SetKey(clientWrite)
		c.crypterIn.SetKey(serverWrite)
	}

	if ivs > 0 {
		clientWrite = block[:ivs]
		serverWrite = block[ivs : ivs*2]

		if c.role == RoleServer {
			c.ivIn = append([]byte(nil), clientWrite...)
			c.ivOut = append([]byte(nil), serverWrite...)
		} else {
			c.ivOut = append([]byte(nil), clientWrite...)
			c.ivIn = append([]byte(nil), serverWrite...)
		}
	}
}

// ChangeCipher 使新派生的原语对该方向生效
// 同一代密钥重复调用是空操作。
func (c *Crypto) ChangeCipher(inbound bool) {
	if inbound {
		if !c.pendingIn {
			return
		}
		crypto.Zero(c.activeIVIn)
		c.activeSignerIn = c.signerIn
		c.activeCrypterIn = c.crypterIn
		c.activeIVIn = c.ivIn
		c.pendingIn = false
	} else {
		if !c.pendingOut {
			return
		}
		crypto.Zero(c.activeIVOut)
		c.activeSignerOut = c.signerOut
		c.activeCrypterOut = c.crypterOut
		c.activeIVOut = c.ivOut
		c.pendingOut = false
	}
}

// Signer 返回该方向当前生效的完整性实例
func (c *Crypto) Signer(inbound bool) crypto.Signer {
	if inbound {
		return c.activeSignerIn
	}
	return c.activeSignerOut
}

// Crypter 返回该方向当前生效的加密实例，NULL 套件为 nil
func (c *Crypto) Crypter(inbound bool) crypto.Crypter {
	if inbound {
		return c.activeCrypterIn
	}
	return c.activeCrypterOut
}

// IV 返回该方向当前生效的固定 IV (仅 TLS < 1.2)
func (c *Crypto) IV(inbound bool) []byte {
	if inbound {
		return c.activeIVIn
	}
	return c.activeIVOut
}

// Destroy 释放并清零所有密钥材料
func (c *Crypto) Destroy() {
	crypto.Zero(c.ivIn)
	crypto.Zero(c.ivOut)
	crypto.Zero(c.activeIVIn)
	crypto.Zero(c.activeIVOut)
	c.ivIn, c.ivOut = nil, nil
	c.activeIVIn, c.activeIVOut = nil, nil
	c.signerIn, c.signerOut = nil, nil
	c.crypterIn, c.crypterOut = nil, nil
	c.activeSignerIn, c.activeSignerOut = nil, nil
	c.activeCrypterIn, c.activeCrypterOut = nil, nil
	c.prf = nil
	c.pendingIn, c.pendingOut = false, false
}
