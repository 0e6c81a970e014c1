package main

import (
	"testing"

	"ecofusion-backend/internal/config"
	"ecofusion-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOperator(t *testing.T) {
	op, err := loadOperator(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, op)

	op, err = loadOperator(&config.Config{OperatorKey: "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"})
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, domain.RoleAdmin, op.account.Role)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", op.account.Address)

	_, err = loadOperator(&config.Config{OperatorKey: "nope"})
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"migrate"}, {"reconcile"}, {"expire-listings"}, {"verdict"}, {"rounds", "list"}, {"rounds", "certify"}, {"set-role"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestPrintOutput_RejectsUnknownFormat(t *testing.T) {
	prev := outputFmt
	t.Cleanup(func() { outputFmt = prev })
	outputFmt = "table"
	assert.Error(t, printOutput(map[string]any{"a": 1}))
}
