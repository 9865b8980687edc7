package walletprocess

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchesDaemonCmdline(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{
			name: "direct_binary",
			args: []string{
				"/usr/bin/wallet-daemon", "--rpc-bind-port", "18082",
			},
			expected: true,
		},
		{
			name: "equals_flag_form",
			args: []string{
				"wallet-daemon", "--rpc-bind-port=18082", "--wallet-file", "w",
			},
			expected: true,
		},
		{
			name: "wrapped_by_interpreter",
			args: []string{
				"/bin/sh", "/opt/bin/wallet-daemon", "--rpc-bind-port", "18082",
			},
			expected: true,
		},
		{
			name: "different_port",
			args: []string{
				"wallet-daemon", "--rpc-bind-port", "28082",
			},
			expected: false,
		},
		{
			name:     "different_binary",
			args:     []string{"nginx", "--rpc-bind-port", "18082"},
			expected: false,
		},
		{
			name:     "empty_cmdline",
			args:     []string{},
			expected: false,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(
				t, tt.expected,
				matchesDaemonCmdline(tt.args, "wallet-daemon", 18082),
			)
		})
	}
}

func TestParseSeed(t *testing.T) {
	output := `Generating new wallet...
PLEASE NOTE: the following 25 words can be used to recover access
one two three four five
six seven eight nine ten
eleven twelve thirteen fourteen fifteen
sixteen seventeen eighteen nineteen twenty
twentyone twentytwo twentythree twentyfour twentyfive
**********************************************************************
`
	seed, err := parseSeed(output)
	require.NoError(t, err)
	require.Equal(
		t,
		"one two three four five six seven eight nine ten eleven twelve "+
			"thirteen fourteen fifteen sixteen seventeen eighteen nineteen "+
			"twenty twentyone twentytwo twentythree twentyfour twentyfive",
		seed,
	)
}

func TestParseSeedMissing(t *testing.T) {
	_, err := parseSeed("wallet created\nno seed here\n")
	require.Error(t, err)
}
