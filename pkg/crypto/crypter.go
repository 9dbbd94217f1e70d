package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"errors"
)

// CrypterID 加密算法标识
type CrypterID uint16

const (
	ENCR_NULL    CrypterID = 1
	ENCR_AES_CBC CrypterID = 2
	ENCR_3DES    CrypterID = 3
	ENCR_AES_CTR CrypterID = 4
)

// Crypter 有状态的块加密实例
// 先 SetKey 绑定密钥，之后 Encrypt/Decrypt 使用该密钥
type Crypter interface {
	// SetKey 绑定加密密钥
	SetKey(key []byte) error
	// Encrypt CBC 加密，输入必须块对齐
	Encrypt(plaintext, iv []byte) ([]byte, error)
	// Decrypt CBC 解密
	Decrypt(ciphertext, iv []byte) ([]byte, error)
	// KeySize 密钥长度
	KeySize() int
	// BlockSize 块长度 (也是 IV 长度)
	BlockSize() int
}

type cbcCrypter struct {
	newCipher func(key []byte) (cipher.Block, error)
	keySize   int
	blockSize int
	block     cipher.Block
}

func (c *cbcCrypter) SetKey(key []byte) error {
	if len(key) != c.keySize {
		return errors.New("无效的密钥长度")
	}
	block, err := c.newCipher(key)
	if err != nil {
		return err
	}
	c.block = block
	return nil
}

func (c *cbcCrypter) Encrypt(plaintext, iv []byte) ([]byte, error) {
	if c.block == nil {
		return nil, errors.New("密钥未设置")
	}
	if len(iv) != c.blockSize {
		return nil, errors.New("无效的 IV 长度")
	}
	if len(plaintext)%c.blockSize != 0 {
		return nil, errors.New("明文未对齐块")
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

func (c *cbcCrypter) Decrypt(ciphertext, iv []byte) ([]byte, error) {
	if c.block == nil {
		return nil, errors.New("密钥未设置")
	}
	if len(iv) != c.blockSize {
		return nil, errors.New("无效的 IV 长度")
	}
	if len(ciphertext)%c.blockSize != 0 {
		return nil, errors.New("密文未对齐块")
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

func (c *cbcCrypter) KeySize() int   { return c.keySize }
func (c *cbcCrypter) BlockSize() int { return c.blockSize }

// GetCrypter 根据 ID 和密钥长度创建加密实例
// ENCR_NULL 没有实例概念，调用方应直接跳过创建
func GetCrypter(id CrypterID, keySize int) (Crypter, error) {
	switch id {
	case ENCR_AES_CBC:
		switch keySize {
		case 16, 24, 32:
		default:
			return nil, errors.New("无效的 AES 密钥长度")
		}
		return &cbcCrypter{newCipher: aes.NewCipher, keySize: keySize, blockSize: aes.BlockSize}, nil
	case ENCR_3DES:
		// 3DES 密钥长度固定 24 字节
		return &cbcCrypter{newCipher: des.NewTripleDESCipher, keySize: 24, blockSize: des.BlockSize}, nil
	default:
		return nil, errors.New("不支持的加密算法")
	}
}
