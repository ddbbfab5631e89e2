package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcbridge/pkg/apiserver/config"
	"calcbridge/pkg/apiserver/domain/model"
)

func TestSubmitInProcess(t *testing.T) {
	color.NoColor = true
	cfg := *config.NewConfig()
	cfg.Correlator.Timeout = 2 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, submit(ctx, cfg, &out, "division", decimal.NewFromInt(10), decimal.NewFromInt(3)))
	assert.Contains(t, out.String(), "3.333333333")

	out.Reset()
	err := submit(ctx, cfg, &out, "divide", decimal.NewFromInt(1), decimal.Zero)
	require.ErrorIs(t, err, model.ErrDivisionByZero)
	assert.Contains(t, out.String(), "Division by zero is not allowed")
}

func TestSubmitRejectsUnsupportedOperation(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	err := submit(context.Background(), *config.NewConfig(), &out, "mod", decimal.NewFromInt(1), decimal.NewFromInt(2))
	require.ErrorIs(t, err, model.ErrUnsupportedOperation)
}

func TestVersionCommand(t *testing.T) {
	cmd := NewAPIServerCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "calcbridge version")
}
