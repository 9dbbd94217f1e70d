package driver

import (
	"fmt"

	"github.com/muvarov/strongswan/pkg/sa"
)

// encrAlgName IKEv2 加密算法 ID 对应的内核算法名
func encrAlgName(id sa.AlgorithmID) (string, error) {
	switch id {
	case sa.ENCR_3DES:
		return "cbc(des3_ede)", nil
	case sa.ENCR_AES_CBC:
		return "cbc(aes)", nil
	case sa.ENCR_AES_CTR:
		return "rfc3686(ctr(aes))", nil
	case sa.ENCR_AES_GCM_8, sa.ENCR_AES_GCM_12, sa.ENCR_AES_GCM_16:
		return "rfc4106(gcm(aes))", nil
	default:
		return "", fmt.Errorf("不支持的加密算法 ID %d", id)
	}
}

// aeadICVBits AEAD 算法的 ICV 位数
func aeadICVBits(id sa.AlgorithmID) (int, error) {
	switch id {
	case sa.ENCR_AES_GCM_8:
		return 64, nil
	case sa.ENCR_AES_GCM_12:
		return 96, nil
	case sa.ENCR_AES_GCM_16:
		return 128, nil
	default:
		return 0, fmt.Errorf("算法 ID %d 不是 AEAD", id)
	}
}

// integAlgName IKEv2 完整性算法 ID 对应的内核算法名和截断位数
func integAlgName(id sa.AlgorithmID) (string, int, error) {
	switch id {
	case sa.AUTH_HMAC_MD5_96:
		return "hmac(md5)", 96, nil
	case sa.AUTH_HMAC_SHA1_96:
		return "hmac(sha1)", 96, nil
	case sa.AUTH_HMAC_SHA2_256_128:
		return "hmac(sha256)", 128, nil
	case sa.AUTH_HMAC_SHA2_384_192:
		return "hmac(sha384)", 192, nil
	case sa.AUTH_HMAC_SHA2_512_256:
		return "hmac(sha512)", 256, nil
	default:
		return "", 0, fmt.Errorf("不支持的完整性算法 ID %d", id)
	}
}
