// File: internal/locks/manager.go
// Brief: Stale-lock inspection and release for the remote lock table.

// Package locks inspects a Terraform-style DynamoDB lock table,
// classifies entries by age, and conditionally releases abandoned ones.
// It never creates locks; mutation is limited to a conditional delete
// keyed by lock id, so correctness rides on the lock service's own
// atomicity guarantees.
package locks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// ErrAlreadyReleased reports that the targeted lock no longer exists
// (or was re-acquired and deleted concurrently). This is an expected
// race under concurrent operators, not a fatal condition.
var ErrAlreadyReleased = errors.New("lock already released")

// Entry is one lock-table row. Created is extracted from the embedded
// Info JSON; HasCreated is false when the metadata is missing or
// malformed, in which case the entry is reported as unknown-age rather
// than auto-classified stale.
type Entry struct {
	LockID     string        `json:"lockId"`
	Who        string        `json:"who,omitempty"`
	Operation  string        `json:"operation,omitempty"`
	Path       string        `json:"path,omitempty"`
	Created    time.Time     `json:"created,omitempty"`
	HasCreated bool          `json:"hasCreated"`
	Age        time.Duration `json:"age,omitempty"`
	RawInfo    string        `json:"-"`
}

// Report groups the scanned entries. Stale entries exceed the
// configured age threshold; unknown-age entries carry no parsable
// creation time and are surfaced separately.
type Report struct {
	Stale      []Entry       `json:"stale,omitempty"`
	Fresh      []Entry       `json:"fresh,omitempty"`
	UnknownAge []Entry       `json:"unknownAge,omitempty"`
	MaxAge     time.Duration `json:"maxAge"`
}

// TableAPI is the slice of the DynamoDB client the manager needs.
type TableAPI interface {
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type Manager struct {
	client TableAPI
	table  string
	maxAge time.Duration

	now func() time.Time
}

func NewManager(client TableAPI, table string, maxAge time.Duration) *Manager {
	return &Manager{client: client, table: table, maxAge: maxAge, now: time.Now}
}

// lockInfo is the documented embedded-field format of the Info
// attribute written by the locking client.
type lockInfo struct {
	ID        string `json:"ID"`
	Operation string `json:"Operation"`
	Who       string `json:"Who"`
	Version   string `json:"Version"`
	Created   string `json:"Created"`
	Path      string `json:"Path"`
}

// List scans the whole lock table and classifies every entry.
// State-digest rows (LockID suffixed -md5, no Info) are not locks and
// are excluded entirely.
func (m *Manager) List(ctx context.Context) (*Report, error) {
	report := &Report{MaxAge: m.maxAge}
	now := m.now().UTC()

	var startKey map[string]types.AttributeValue
	for {
		out, err := m.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(m.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, describeAPIError("scan lock table", m.table, err)
		}
		for _, item := range out.Items {
			entry, ok := parseItem(item)
			if !ok {
				continue
			}
			switch {
			case !entry.HasCreated:
				report.UnknownAge = append(report.UnknownAge, entry)
			default:
				entry.Age = now.Sub(entry.Created)
				if entry.Age > m.maxAge {
					report.Stale = append(report.Stale, entry)
				} else {
					report.Fresh = append(report.Fresh, entry)
				}
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	for _, entries := range [][]Entry{report.Stale, report.Fresh, report.UnknownAge} {
		sort.Slice(entries, func(i, j int) bool { return entries[i].LockID < entries[j].LockID })
	}
	return report, nil
}

// Release deletes one lock entry, conditional on it still existing.
// A concurrent release or re-acquire surfaces as ErrAlreadyReleased.
func (m *Manager) Release(ctx context.Context, lockID string) error {
	lockID = strings.TrimSpace(lockID)
	if lockID == "" {
		return fmt.Errorf("lock id is required")
	}
	_, err := m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(m.table),
		Key: map[string]types.AttributeValue{
			"LockID": &types.AttributeValueMemberS{Value: lockID},
		},
		ConditionExpression: aws.String("attribute_exists(LockID)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", lockID, ErrAlreadyReleased)
		}
		return describeAPIError("release lock "+lockID, m.table, err)
	}
	return nil
}

func parseItem(item map[string]types.AttributeValue) (Entry, bool) {
	id := stringAttr(item, "LockID")
	if id == "" {
		return Entry{}, false
	}
	info := stringAttr(item, "Info")
	if info == "" && strings.HasSuffix(id, "-md5") {
		// State checksum row, not a lock.
		return Entry{}, false
	}
	entry := Entry{LockID: id, RawInfo: info}
	if info == "" {
		return entry, true
	}
	var li lockInfo
	if err := json.Unmarshal([]byte(info), &li); err != nil {
		return entry, true
	}
	entry.Who = li.Who
	entry.Operation = li.Operation
	entry.Path = li.Path
	if created, err := parseCreated(li.Created); err == nil {
		entry.Created = created
		entry.HasCreated = true
	}
	return entry, true
}

func parseCreated(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty Created")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func stringAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func describeAPIError(op, table string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
		return fmt.Errorf("%s: table %q does not exist: %w", op, table, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
