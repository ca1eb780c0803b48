package service

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"
)

func genKeypairForTest(t *testing.T) (pubB64, skB64 string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(pub), base64.StdEncoding.EncodeToString(priv.Seed())
}

func unixFarFuture() int64 {
	return time.Now().Add(time.Hour).Unix()
}
