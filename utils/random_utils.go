package utils

import (
	"crypto/rand"
	"math/big"
)

// 访问码字符集，去掉了易混淆的 0/O/1/I/L
const accessCodeCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// RandomAccessCode 生成指定长度的随机访问码
func RandomAccessCode(length int) string {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(accessCodeCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("generate random access code failed")
		}
		buf[i] = accessCodeCharset[n.Int64()]
	}
	return string(buf)
}
