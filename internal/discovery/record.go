package discovery

import (
	"path"
	"slices"
	"strings"
	"time"

	"github.com/blang/semver/v4"
	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// recordRaw 为写入 etcd 的 JSON 结构。
type recordRaw struct {
	ServerID  string    `json:"serverID"`
	Address   string    `json:"address"`
	HostName  string    `json:"hostName,omitempty"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"startedAt"`
	LeaseID   int64     `json:"leaseID,omitempty"`
}

// Record 描述一个已发布的中继服务器。
type Record struct {
	ServerID  string
	Address   string
	HostName  string
	Version   semver.Version
	StartedAt time.Time
	LeaseID   int64
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordRaw{
		ServerID:  r.ServerID,
		Address:   r.Address,
		HostName:  r.HostName,
		Version:   r.Version.String(),
		StartedAt: r.StartedAt,
		LeaseID:   r.LeaseID,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "decode relay record")
	}
	version, err := semver.Parse(raw.Version)
	if err != nil {
		return errors.Wrapf(err, "parse relay version %q", raw.Version)
	}
	*r = Record{
		ServerID:  raw.ServerID,
		Address:   raw.Address,
		HostName:  raw.HostName,
		Version:   version,
		StartedAt: raw.StartedAt,
		LeaseID:   raw.LeaseID,
	}
	return nil
}

// Key 返回记录在 etcd 中的完整 key。
func (r Record) Key(root string) string {
	return path.Join(root, r.ServerID)
}

// FilterByVersion 返回版本满足 versionRange 的记录，顺序不变。
func FilterByVersion(records []Record, versionRange semver.Range) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if versionRange(r.Version) {
			out = append(out, r)
		}
	}
	return out
}

func sortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(a.ServerID, b.ServerID)
	})
}
