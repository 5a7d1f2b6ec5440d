package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("CIM_USERNAME", "self")

	config, err := Load()

	req.NoError(err)
	req.Equal("localhost:6667", config.Address())
	req.Equal(15*time.Second, config.HeartbeatInterval)
	req.Zero(config.ReconnectMaxAttempts)
	req.Nil(config.LimitRecords)
	req.Empty(config.Muted())

	opts := config.Options()
	req.Equal("self", opts.Username)
	req.Equal(256, opts.OutboundQueueMaxDepth)
	req.Equal(0.2, opts.ReconnectJitter)
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("CIM_USERNAME", "self")
	t.Setenv("CIM_HOST", "chat.example.org")
	t.Setenv("CIM_PORT", "443")
	t.Setenv("CIM_TRANSPORT", "wss")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "5")
	t.Setenv("MUTED_WORDS", "darn, heck ,,")
	t.Setenv("HISTORY_LIMIT_RECORDS", "20")

	config, err := Load()

	req.NoError(err)
	req.Equal("wss://chat.example.org:443/ws", config.Address())
	req.Equal(5, config.Options().ReconnectMaxAttempts)
	req.Equal([]string{"darn", "heck"}, config.Muted())
	req.NotNil(config.LimitRecords)
	req.Equal(20, *config.LimitRecords)
}

func TestLoad_UsernameIsOptional(t *testing.T) {
	req := require.New(t)
	t.Setenv("CIM_USERNAME", "")

	config, err := Load()

	// The server assigns a name when none is configured
	req.NoError(err)
	req.Empty(config.Options().Username)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"username too long", "CIM_USERNAME", "a_name_well_over_thirty_two_chars"},
		{"unknown transport", "CIM_TRANSPORT", "udp"},
		{"port out of range", "CIM_PORT", "70000"},
		{"jitter too large", "RECONNECT_JITTER", "1.5"},
		{"max delay below base", "RECONNECT_MAX_DELAY", "1ms"},
		{"mask of two characters", "MASK_CHARACTER", "**"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			t.Setenv("CIM_USERNAME", "self")
			t.Setenv(tc.key, tc.value)

			_, err := Load()

			req.Error(err)
		})
	}
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)
	r, err := CharacterRune("#")
	req.NoError(err)
	req.Equal('#', r)

	_, err = CharacterRune("")
	req.Error(err)
}
