package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "storefront", cmd.Use)
	assert.Contains(t, cmd.Long, "SQLite")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"catalog", "list"},
		{"catalog", "home"},
		{"cart", "show"},
		{"cart", "add"},
		{"cart", "set"},
		{"cart", "remove"},
		{"cart", "clear"},
		{"auth", "login"},
		{"auth", "signup"},
		{"auth", "logout"},
		{"auth", "whoami"},
		{"address", "list"},
		{"address", "add"},
		{"address", "delete"},
		{"orders"},
		{"checkout"},
		{"profile", "show"},
		{"profile", "set"},
		{"mock-server"},
		{"version"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "storefront.db", dbFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("base-url"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestCartAddFlags(t *testing.T) {
	cmd := NewRootCommand()
	addCmd, _, err := cmd.Find([]string{"cart", "add"})
	require.NoError(t, err)

	qtyFlag := addCmd.Flags().Lookup("qty")
	require.NotNil(t, qtyFlag)
	assert.Equal(t, "q", qtyFlag.Shorthand)
	assert.Equal(t, "1", qtyFlag.DefValue)
}

func TestCheckoutFlags(t *testing.T) {
	cmd := NewRootCommand()
	checkoutCmd, _, err := cmd.Find([]string{"checkout"})
	require.NoError(t, err)

	methodFlag := checkoutCmd.Flags().Lookup("method")
	require.NotNil(t, methodFlag)
	assert.Equal(t, "cod", methodFlag.DefValue)
	require.NotNil(t, checkoutCmd.Flags().Lookup("address"))
}

func TestMockServerFlags(t *testing.T) {
	cmd := NewRootCommand()
	mockCmd, _, err := cmd.Find([]string{"mock-server"})
	require.NoError(t, err)

	addrFlag := mockCmd.Flags().Lookup("addr")
	require.NotNil(t, addrFlag)
	assert.Equal(t, ":8080", addrFlag.DefValue)
	require.NotNil(t, mockCmd.Flags().Lookup("cold-start"))
	require.NotNil(t, mockCmd.Flags().Lookup("error-rate"))
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "yaml", "version"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("json"))
	assert.True(t, isValidFormat("text"))
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
}
