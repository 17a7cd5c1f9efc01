package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// exerciseStore runs the behaviour every ContentStore must share
func exerciseStore(t *testing.T, cs ContentStore) {
	t.Helper()
	ctx := context.Background()

	if err := cs.CreateFolder(ctx, "components"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}

	exists, err := cs.Exists(ctx, "components/Button.jsx")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("file should not exist yet")
	}

	if _, err := cs.Read(ctx, "components/Button.jsx"); !errors.Is(err, ErrNotExist) {
		t.Errorf("expected ErrNotExist reading missing file, got %v", err)
	}

	if err := cs.Write(ctx, "components/Button.jsx", "v1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := cs.Write(ctx, "components/Button.jsx", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := cs.Write(ctx, "components/nested/Icon.jsx", "icon"); err != nil {
		t.Fatalf("nested Write: %v", err)
	}

	got, err := cs.Read(ctx, "components/Button.jsx")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "v2" {
		t.Errorf("expected full replace to v2, got %q", got)
	}

	files, err := cs.List(ctx, "components")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(files)
	want := []string{"components/Button.jsx", "components/nested/Icon.jsx"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("List = %v, want %v", files, want)
	}

	if err := cs.Delete(ctx, "components/Button.jsx"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if exists, _ := cs.Exists(ctx, "components/Button.jsx"); exists {
		t.Error("file should be gone after Delete")
	}
	if err := cs.Delete(ctx, "components/Button.jsx"); err != nil {
		t.Errorf("deleting a missing file should succeed, got %v", err)
	}
}

func TestDir(t *testing.T) {
	exerciseStore(t, NewDir(t.TempDir()))
}

func TestDir_WriteIsAtomic(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)
	if err := d.Write(context.Background(), "a/b.txt", "content"); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "a"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".ecm-tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestDir_RejectsEscape(t *testing.T) {
	d := NewDir(t.TempDir())
	err := d.Write(context.Background(), "../outside.txt", "x")
	if !errors.Is(err, ErrPersistence) {
		t.Errorf("expected ErrPersistence for escaping path, got %v", err)
	}
	if _, err := d.Abs("/etc/passwd"); err == nil {
		t.Error("expected absolute path to be rejected")
	}
}

func TestDir_ListMissingDir(t *testing.T) {
	files, err := NewDir(t.TempDir()).List(context.Background(), "nope")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

// fakeS3 is an in-memory S3API
type fakeS3 struct {
	objects map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]string)}
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func TestS3(t *testing.T) {
	fake := newFakeS3()
	exerciseStore(t, NewS3(fake, "bucket", "/site/"))

	for key := range fake.objects {
		if !strings.HasPrefix(key, "site/") {
			t.Errorf("object %q written outside prefix", key)
		}
	}
}

func TestS3_WriteError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")

	err := NewS3(fake, "bucket", "").Write(context.Background(), "a.jsx", "x")
	if !errors.Is(err, ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "put" {
		t.Errorf("expected put PersistenceError, got %v", err)
	}
}

func TestNewS3Client(t *testing.T) {
	client := NewS3Client(S3Options{Region: "eu-central-1", Endpoint: "http://localhost:9000", PathStyle: true})
	if client == nil {
		t.Fatal("expected client")
	}
	opts := client.Options()
	if !opts.UsePathStyle || aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" {
		t.Errorf("unexpected options: path style %v, endpoint %v", opts.UsePathStyle, aws.ToString(opts.BaseEndpoint))
	}
}
