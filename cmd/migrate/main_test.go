package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/database"
)

func TestDispatch_Usage(t *testing.T) {
	ctx := context.Background()
	for _, args := range [][]string{nil, {"sideways"}, {"down"}} {
		assert.ErrorIs(t, dispatch(ctx, args, &bytes.Buffer{}), errUsage, "args %v", args)
	}
}

func TestDispatch_ListNeedsNoDatabase(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, dispatch(context.Background(), []string{"list"}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, len(database.GetMigrations()))
	assert.Contains(t, out.String(), "uploader")
}

func TestPrintUsage_ListsEveryCommand(t *testing.T) {
	var out bytes.Buffer
	printUsage(&out)
	for _, c := range commands {
		assert.Contains(t, out.String(), c.name)
	}
	assert.Contains(t, out.String(), "down <version>")
}
