package discovery

import (
	"testing"
	"time"

	"github.com/blang/semver/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zviper "github.com/lk2023060901/chatrelay-go/pkg/util/viper"
)

func TestRecordJSON(t *testing.T) {
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	r := Record{
		ServerID:  "relay-1",
		Address:   "10.0.0.5:8080",
		HostName:  "HOST",
		Version:   semver.MustParse("1.2.3"),
		StartedAt: started,
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":"1.2.3"`)
	assert.NotContains(t, string(data), "leaseID")

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.ServerID, back.ServerID)
	assert.True(t, r.Version.EQ(back.Version))
	assert.True(t, started.Equal(back.StartedAt))

	assert.Error(t, json.Unmarshal([]byte(`{"serverID":"x","version":"not-semver"}`), &back))
}

func TestRecordKey(t *testing.T) {
	r := Record{ServerID: "relay-7"}
	assert.Equal(t, "/chatrelay/relays/relay-7", r.Key(DefaultRoot))
	assert.Equal(t, "custom/relay-7", r.Key("custom/"))
}

func TestFilterByVersion(t *testing.T) {
	records := []Record{
		{ServerID: "a", Version: semver.MustParse("0.9.0")},
		{ServerID: "b", Version: semver.MustParse("1.0.0")},
		{ServerID: "c", Version: semver.MustParse("1.4.2")},
		{ServerID: "d", Version: semver.MustParse("2.0.0")},
	}
	got := FilterByVersion(records, semver.MustParseRange(">=1.0.0 <2.0.0"))
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ServerID)
	}
	assert.Equal(t, []string{"b", "c"}, ids)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{TTL: 100 * time.Millisecond}.WithDefaults()
	assert.Equal(t, DefaultRoot, cfg.Root)
	assert.Equal(t, defaultTTL, cfg.TTL)
	assert.Equal(t, defaultDialTimeout, cfg.DialTimeout)
	assert.EqualValues(t, defaultRetryTimes, cfg.RetryTimes)

	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestSortRecords(t *testing.T) {
	records := []Record{{ServerID: "b"}, {ServerID: "a"}}
	sortRecords(records)
	assert.Equal(t, "a", records[0].ServerID)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CHATRELAY_ETCD_ENABLED", "true")
	t.Setenv("CHATRELAY_ETCD_TTL", "30s")

	v := zviper.New("CHATRELAY")
	SetDefaults(v)
	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 30*time.Second, cfg.TTL)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Endpoints)
	assert.Equal(t, DefaultRoot, cfg.Root)
}
