package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

func snapshotSchema() string {
	fields := []map[string]string{
		{"Tag": "name=full_name, type=BYTE_ARRAY, repetitiontype=OPTIONAL"},
		{"Tag": "name=description, type=BYTE_ARRAY, repetitiontype=OPTIONAL"},
		{"Tag": "name=language, type=BYTE_ARRAY, repetitiontype=OPTIONAL"},
		{"Tag": "name=stars, type=INT64, repetitiontype=OPTIONAL"},
		{"Tag": "name=size, type=INT64, repetitiontype=OPTIONAL"},
		{"Tag": "name=license, type=BYTE_ARRAY, repetitiontype=OPTIONAL"},
		{"Tag": "name=owner, type=BYTE_ARRAY, repetitiontype=OPTIONAL"},
		{"Tag": "name=open_issues_count, type=INT64, repetitiontype=OPTIONAL"},
		{"Tag": "name=created_at, type=BYTE_ARRAY, repetitiontype=OPTIONAL"},
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// SnapshotParquet serializes the cleaned dataset as a single SNAPPY-compressed
// Parquet blob so a training run's exact inputs can be inspected later.
func SnapshotParquet(repos []Repo) ([]byte, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(snapshotSchema(), pfw, 4)
	if err != nil {
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range repos {
		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Format(time.RFC3339)
		}
		row := map[string]any{
			"full_name":         r.FullName,
			"description":       r.Description,
			"language":          r.Language,
			"stars":             int64(r.Stars),
			"size":              int64(r.Size),
			"license":           r.License,
			"owner":             r.Owner,
			"open_issues_count": int64(r.OpenIssues),
			"created_at":        created,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, fmt.Errorf("parquet finalize: %w", err)
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

// SnapshotKey returns the partitioned artifact key for a snapshot.
func SnapshotKey(runID string, ts time.Time) string {
	return fmt.Sprintf("snapshots/dt=%s/run=%s/part-%06d.parquet", ts.Format("2006-01-02"), runID, 0)
}
