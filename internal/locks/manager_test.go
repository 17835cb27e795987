package locks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type fakeTable struct {
	pages   []*dynamodb.ScanOutput
	scans   int
	deleted []string
	missing map[string]bool
	scanErr error
}

func (f *fakeTable) Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	if f.scans >= len(f.pages) {
		return &dynamodb.ScanOutput{}, nil
	}
	out := f.pages[f.scans]
	f.scans++
	return out, nil
}

func (f *fakeTable) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	id := in.Key["LockID"].(*types.AttributeValueMemberS).Value
	if f.missing[id] {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.deleted = append(f.deleted, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func lockItem(id string, created string) map[string]types.AttributeValue {
	info := fmt.Sprintf(`{"ID":"%s","Operation":"OperationTypeApply","Who":"ops@bastion","Version":"1.5.7","Created":"%s","Path":"tf-state/eks/terraform.tfstate"}`, id, created)
	return map[string]types.AttributeValue{
		"LockID": &types.AttributeValueMemberS{Value: id},
		"Info":   &types.AttributeValueMemberS{Value: info},
	}
}

func TestList_ClassifiesByAge(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	table := &fakeTable{pages: []*dynamodb.ScanOutput{{
		Items: []map[string]types.AttributeValue{
			lockItem("tf-state/eks/terraform.tfstate", now.Add(-4*time.Hour).Format(time.RFC3339Nano)),
			lockItem("tf-state/vpc/terraform.tfstate", now.Add(-1*time.Hour).Format(time.RFC3339Nano)),
			lockItem("tf-state/dns/terraform.tfstate", "not-a-timestamp"),
			{
				// Digest row, not a lock.
				"LockID": &types.AttributeValueMemberS{Value: "tf-state/eks/terraform.tfstate-md5"},
				"Digest": &types.AttributeValueMemberS{Value: "abc123"},
			},
		},
	}}}
	m := NewManager(table, "terraform-locks", 10800*time.Second)
	m.now = func() time.Time { return now }

	report, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(report.Stale) != 1 || report.Stale[0].LockID != "tf-state/eks/terraform.tfstate" {
		t.Fatalf("stale=%+v", report.Stale)
	}
	if report.Stale[0].Age != 4*time.Hour {
		t.Fatalf("age=%v", report.Stale[0].Age)
	}
	if len(report.Fresh) != 1 || report.Fresh[0].LockID != "tf-state/vpc/terraform.tfstate" {
		t.Fatalf("fresh=%+v", report.Fresh)
	}
	if len(report.UnknownAge) != 1 || report.UnknownAge[0].LockID != "tf-state/dns/terraform.tfstate" {
		t.Fatalf("unknownAge=%+v", report.UnknownAge)
	}
	if report.UnknownAge[0].HasCreated {
		t.Fatalf("unknown-age entry must not carry a creation time")
	}
	if report.Stale[0].Who != "ops@bastion" {
		t.Fatalf("who=%q", report.Stale[0].Who)
	}
}

func TestList_PaginatesScan(t *testing.T) {
	now := time.Now().UTC()
	key := map[string]types.AttributeValue{"LockID": &types.AttributeValueMemberS{Value: "a"}}
	table := &fakeTable{pages: []*dynamodb.ScanOutput{
		{
			Items:            []map[string]types.AttributeValue{lockItem("a", now.Format(time.RFC3339Nano))},
			LastEvaluatedKey: key,
		},
		{
			Items: []map[string]types.AttributeValue{lockItem("b", now.Format(time.RFC3339Nano))},
		},
	}}
	m := NewManager(table, "terraform-locks", time.Hour)
	report, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if table.scans != 2 {
		t.Fatalf("scans=%d", table.scans)
	}
	if len(report.Fresh) != 2 {
		t.Fatalf("fresh=%+v", report.Fresh)
	}
}

func TestList_MissingInfoIsUnknownAge(t *testing.T) {
	table := &fakeTable{pages: []*dynamodb.ScanOutput{{
		Items: []map[string]types.AttributeValue{
			{"LockID": &types.AttributeValueMemberS{Value: "tf-state/bare"}},
		},
	}}}
	m := NewManager(table, "terraform-locks", time.Hour)
	report, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(report.UnknownAge) != 1 || report.UnknownAge[0].LockID != "tf-state/bare" {
		t.Fatalf("unknownAge=%+v", report.UnknownAge)
	}
}

func TestRelease_DeletesExistingLock(t *testing.T) {
	table := &fakeTable{}
	m := NewManager(table, "terraform-locks", time.Hour)
	if err := m.Release(context.Background(), "tf-state/eks/terraform.tfstate"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(table.deleted) != 1 || table.deleted[0] != "tf-state/eks/terraform.tfstate" {
		t.Fatalf("deleted=%v", table.deleted)
	}
}

func TestRelease_AlreadyReleasedIsSentinel(t *testing.T) {
	table := &fakeTable{missing: map[string]bool{"gone": true}}
	m := NewManager(table, "terraform-locks", time.Hour)
	err := m.Release(context.Background(), "gone")
	if !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("err=%v want ErrAlreadyReleased", err)
	}
}

func TestRelease_EmptyIDRejected(t *testing.T) {
	m := NewManager(&fakeTable{}, "terraform-locks", time.Hour)
	if err := m.Release(context.Background(), "  "); err == nil {
		t.Fatalf("expected error")
	}
}
