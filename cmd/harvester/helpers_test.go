package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const coinbaseEML = `From: Coinbase <no-reply@coinbase.com>
Subject: You bought Bitcoin
Date: Fri, 01 Mar 2024 15:04:05 +0000
Message-ID: <cb-1@coinbase.com>
Content-Type: text/plain; charset=utf-8

You bought 0.5 BTC for $30,000.00 USD. Transaction ID: QWERTY12345
`

func writeEML(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coinbase.eml"), []byte(coinbaseEML), 0o600))
}
