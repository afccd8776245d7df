package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metapool/internal/liquidity"
	"metapool/internal/model"
	"metapool/internal/storage"
)

type cli struct {
	t      *testing.T
	common []string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	return &cli{t: t, common: []string{
		"--backend=file",
		"--state-file=" + filepath.Join(dir, "pool.json"),
		"--journal=" + filepath.Join(dir, "ops.jsonl"),
		"--log-level=error",
	}}
}

func (c *cli) journal() string {
	return c.common[2][len("--journal="):]
}

func (c *cli) run(args ...string) (map[string]any, error) {
	c.t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, c.common...))

	if err := root.Execute(); err != nil {
		return nil, err
	}
	var body map[string]any
	require.NoError(c.t, json.Unmarshal(out.Bytes(), &body), out.String())
	return body, nil
}

func (c *cli) mustRun(args ...string) map[string]any {
	c.t.Helper()
	body, err := c.run(args...)
	require.NoError(c.t, err)
	return body
}

func acct(seed byte) string {
	var pk solana.PublicKey
	for i := range pk {
		pk[i] = seed
	}
	return pk.String()
}

func TestCommandLifecycle(t *testing.T) {
	c := newCLI(t)
	provider, seller := acct(7), acct(8)

	state := c.mustRun("create-liquidity-pool", "--authority="+acct(1))
	assert.Equal(t, float64(3), state["fee_numerator"])

	c.mustRun("fund", "wsol", "7000", "--source="+provider)
	receipt := c.mustRun("add-liquidity", "7000", "--source="+provider)
	assert.Equal(t, float64(7000), receipt["lp_minted"])

	c.mustRun("fund", "stsol", "1030", "--source="+seller)
	receipt = c.mustRun("sell-stsol", "1030", "--source="+seller)
	assert.Equal(t, float64(31), receipt["fee"])
	assert.Equal(t, float64(999), receipt["wsol_out"])

	quote := c.mustRun("quote", "remove-liquidity", "3500", "--source="+provider)
	assert.Equal(t, float64(3000), quote["wsol_out"])

	status := c.mustRun("status", "--source="+provider)
	assert.Equal(t, "7031", status["value_wsol"])
	position := status["position"].(map[string]any)
	assert.Equal(t, float64(7000), position["shares"])

	audit := c.mustRun("audit")
	assert.Nil(t, audit["problems"])

	receipt = c.mustRun("remove-liquidity", "7000", "--source="+provider)
	assert.Equal(t, float64(6001), receipt["wsol_out"])
	assert.Equal(t, float64(1030), receipt["stsol_out"])

	var ops []string
	_, err := storage.ReadJournal(c.journal(), func(rec model.OperationRecord) error {
		ops = append(ops, rec.Operation)
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{model.OpCreatePool, model.OpAddLiquidity, model.OpSellStSOL, model.OpRemoveLiquidity}, ops)
}

func TestCommandFailuresExitWithKind(t *testing.T) {
	c := newCLI(t)
	provider := acct(7)

	_, err := c.run("add-liquidity", "10", "--source="+provider)
	require.Error(t, err)
	assert.Equal(t, 10+int(liquidity.KindPoolNotInitialized), exitCode(err))

	c.mustRun("init", "--authority="+acct(1))
	c.mustRun("fund", "wsol", "500", "--source="+provider)
	c.mustRun("add-liquidity", "500", "--source="+provider)

	tests := []struct {
		args []string
		kind liquidity.Kind
	}{
		{args: []string{"sell-stsol", "0"}, kind: liquidity.KindZeroAmount},
		{args: []string{"add-liquidity", "501"}, kind: liquidity.KindInsufficientBalance},
		{args: []string{"remove-liquidity", "501"}, kind: liquidity.KindInsufficientShares},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.args), func(t *testing.T) {
			_, err := c.run(append(tt.args, "--source="+provider)...)
			require.Error(t, err)
			assert.Equal(t, tt.kind, liquidity.KindOf(err))
			assert.Equal(t, 10+int(tt.kind), exitCode(err))
			assert.Contains(t, err.Error(), tt.kind.String())
		})
	}

	_, err = c.run("init", "--authority="+acct(1))
	assert.Equal(t, liquidity.KindPoolExists, liquidity.KindOf(err))

	_, err = c.run("sell-stsol", "12", "--source="+provider)
	require.Error(t, err)
	assert.Equal(t, liquidity.KindInsufficientBalance, liquidity.KindOf(err))
	assert.Contains(t, err.Error(), "requested 12")

	_, err = c.run("sell-stsol", "abc", "--source="+provider)
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCode(err))
}
