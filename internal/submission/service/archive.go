package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"hirejudge/internal/common/storage"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const defaultSourcePrefix = "sources"

// SourceArchive stores zstd-compressed submission sources in object storage.
type SourceArchive struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewSourceArchive creates an archive writing under bucket/prefix.
func NewSourceArchive(store storage.ObjectStorage, bucket, prefix string) (*SourceArchive, error) {
	if store == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("source bucket is required")
	}
	if prefix == "" {
		prefix = defaultSourcePrefix
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	return &SourceArchive{
		storage: store,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		encoder: enc,
		decoder: dec,
	}, nil
}

// Store compresses code and uploads it, returning the object key.
func (a *SourceArchive) Store(ctx context.Context, interviewID, candidateID, questionID int64, code string) (string, error) {
	key := fmt.Sprintf("%s/%d/%d/%d/%s.zst", a.prefix, interviewID, candidateID, questionID, uuid.NewString())
	compressed := a.encoder.EncodeAll([]byte(code), nil)
	err := a.storage.Put(ctx, storage.Object{
		Bucket:      a.bucket,
		Key:         key,
		Body:        bytes.NewReader(compressed),
		Size:        int64(len(compressed)),
		ContentType: "application/zstd",
		Metadata: map[string]string{
			"interview-id": strconv.FormatInt(interviewID, 10),
			"candidate-id": strconv.FormatInt(candidateID, 10),
			"question-id":  strconv.FormatInt(questionID, 10),
			"source-bytes": strconv.Itoa(len(code)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload source failed: %w", err)
	}
	return key, nil
}

// Load downloads and decompresses the source stored under key.
func (a *SourceArchive) Load(ctx context.Context, key string) (string, error) {
	rc, err := a.storage.Open(ctx, a.bucket, key)
	if err != nil {
		return "", fmt.Errorf("download source failed: %w", err)
	}
	defer rc.Close()
	compressed, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read source failed: %w", err)
	}
	out, err := a.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("decompress source failed: %w", err)
	}
	return string(out), nil
}
