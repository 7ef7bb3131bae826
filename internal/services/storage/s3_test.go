package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"foundry/internal/config"
	"foundry/internal/logging"
	"foundry/internal/services"
)

type fakeS3 struct {
	puts []s3.PutObjectInput
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, *params)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Upload(t *testing.T) {
	client := &fakeS3{}
	provider, err := NewS3(context.Background(), config.S3{
		Bucket: "assets",
		Region: "us-east-1",
	}, logging.NewNop(), WithS3Client(client))
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}

	locator, err := provider.Upload(context.Background(), []byte("payload"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(client.puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(client.puts))
	}
	put := client.puts[0]
	if *put.Bucket != "assets" {
		t.Fatalf("bucket = %q", *put.Bucket)
	}
	if !strings.HasSuffix(*put.Key, ".png") {
		t.Fatalf("key %q missing extension", *put.Key)
	}
	if *put.ContentType != "image/png" {
		t.Fatalf("content type = %q", *put.ContentType)
	}
	want := "https://assets.s3.us-east-1.amazonaws.com/" + *put.Key
	if locator != want {
		t.Fatalf("locator = %q, want %q", locator, want)
	}
}

func TestS3UploadFailureIsTransient(t *testing.T) {
	client := &fakeS3{err: errors.New("connection reset")}
	provider, err := NewS3(context.Background(), config.S3{Bucket: "assets"}, logging.NewNop(), WithS3Client(client))
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if _, err := provider.Upload(context.Background(), []byte("x"), "image/png"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("upload error = %v, want ErrTransient", err)
	}
}

func TestS3ObjectURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.S3
		want string
	}{
		{
			name: "public url wins",
			cfg:  config.S3{Bucket: "b", Region: "r", Endpoint: "http://minio:9000", PublicURL: "https://cdn.example.com"},
			want: "https://cdn.example.com/key",
		},
		{
			name: "custom endpoint",
			cfg:  config.S3{Bucket: "b", Region: "r", Endpoint: "http://minio:9000"},
			want: "http://minio:9000/b/key",
		},
		{
			name: "aws default",
			cfg:  config.S3{Bucket: "b", Region: "eu-west-1"},
			want: "https://b.s3.eu-west-1.amazonaws.com/key",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider, err := NewS3(context.Background(), tc.cfg, logging.NewNop(), WithS3Client(&fakeS3{}))
			if err != nil {
				t.Fatalf("NewS3: %v", err)
			}
			if got := provider.objectURL("key"); got != tc.want {
				t.Fatalf("objectURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestS3NoFundingModel(t *testing.T) {
	provider, err := NewS3(context.Background(), config.S3{Bucket: "b"}, logging.NewNop(), WithS3Client(&fakeS3{}))
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	cost, err := provider.EstimateCost(context.Background(), 1<<32)
	if err != nil || cost != 0 {
		t.Fatalf("EstimateCost = (%d, %v), want (0, nil)", cost, err)
	}
	balance, err := provider.Balance(context.Background())
	if err != nil || balance == 0 {
		t.Fatalf("Balance = (%d, %v), want unlimited", balance, err)
	}
}
