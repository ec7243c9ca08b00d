package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// EncryptedPrefix 配置文件中加密密码的前缀
const EncryptedPrefix = "enc:"

var (
	// 默认加密密钥
	defaultKey = []byte("sqlrun-default-key-0123456789abc")
	// 当前使用的加密密钥
	currentKey = defaultKey

	passphraseSalt = []byte("sqlrun/password/v1")
)

// 用于测试的函数
func setEncryptionKey(key []byte) (restore func()) {
	oldKey := currentKey
	currentKey = key
	return func() {
		currentKey = oldKey
	}
}

// DeriveKey 用 scrypt 从口令派生 AES-256 密钥
func DeriveKey(passphrase string) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), passphraseSalt, 32768, 8, 1, 32)
}

// UsePassphrase 使用口令派生的密钥替换默认密钥，空口令保持默认密钥
func UsePassphrase(passphrase string) error {
	if passphrase == "" {
		currentKey = defaultKey
		return nil
	}
	key, err := DeriveKey(passphrase)
	if err != nil {
		return fmt.Errorf("派生密钥失败: %w", err)
	}
	currentKey = key
	return nil
}

// EncryptPassword 加密密码
func EncryptPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("密码不能为空")
	}

	block, err := aes.NewCipher(currentKey)
	if err != nil {
		return "", err
	}

	plaintext := []byte(password)
	ciphertext := make([]byte, aes.BlockSize+len(plaintext))
	iv := ciphertext[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], plaintext)

	return EncryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptPassword 解密密码
func DecryptPassword(encrypted string) (string, error) {
	if !strings.HasPrefix(encrypted, EncryptedPrefix) {
		return "", fmt.Errorf("密文缺少 %q 前缀", EncryptedPrefix)
	}

	block, err := aes.NewCipher(currentKey)
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encrypted, EncryptedPrefix))
	if err != nil {
		return "", err
	}

	if len(ciphertext) <= aes.BlockSize {
		return "", fmt.Errorf("密文太短")
	}

	iv := ciphertext[:aes.BlockSize]
	ciphertext = ciphertext[aes.BlockSize:]

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(ciphertext, ciphertext)

	return string(ciphertext), nil
}

// IsEncrypted 检查密码是否为 EncryptPassword 的输出
func IsEncrypted(password string) bool {
	if !strings.HasPrefix(password, EncryptedPrefix) {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(password, EncryptedPrefix))
	if err != nil {
		return false
	}
	return len(decoded) > aes.BlockSize
}
